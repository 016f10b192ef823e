package engine

import (
	"context"
	"fmt"

	"github.com/admingate/admingate/internal/permissions"
	"github.com/admingate/admingate/internal/resources"
	appErrors "github.com/admingate/admingate/pkg/errors"
)

// Bulk operations accepted by the engine. Authorization for the whole batch
// happens once in the dispatcher before the engine is invoked.
const (
	BulkCreate = "create"
	BulkUpdate = "update"
	BulkDelete = "delete"
)

// BulkResult aggregates a batch outcome. Indices refer to positions in the
// caller's item list; ordering within Success and Errors follows input order.
type BulkResult struct {
	Operation    string       `json:"operation"`
	TotalItems   int          `json:"total_items"`
	SuccessCount int          `json:"success_count"`
	ErrorCount   int          `json:"error_count"`
	Results      BulkOutcomes `json:"results"`
}

// BulkOutcomes splits per-item results by outcome.
type BulkOutcomes struct {
	Success []BulkSuccess `json:"success"`
	Errors  []BulkError   `json:"errors"`
}

// BulkSuccess records one completed item.
type BulkSuccess struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
}

// BulkError records one failed item using the public error taxonomy.
type BulkError struct {
	Index   int    `json:"index"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Bulk executes the given operation once per item, each item in its own
// transaction. A failing item never rolls back or blocks the others.
func (e *Engine) Bulk(ctx context.Context, principal *permissions.Principal, desc resources.Descriptor, operation string, items []any) (*BulkResult, error) {
	switch operation {
	case BulkCreate, BulkUpdate, BulkDelete:
	default:
		return nil, appErrors.NewInvalidInput(fmt.Sprintf("Unknown bulk operation '%s'", operation))
	}
	if len(items) == 0 {
		return nil, appErrors.NewInvalidInput("Bulk operation requires at least one item")
	}

	result := &BulkResult{
		Operation:  operation,
		TotalItems: len(items),
		Results: BulkOutcomes{
			Success: []BulkSuccess{},
			Errors:  []BulkError{},
		},
	}

	for index, raw := range items {
		id, err := e.bulkItem(ctx, principal, desc, operation, raw)
		if err != nil {
			appErr := appErrors.FromError(err)
			result.ErrorCount++
			result.Results.Errors = append(result.Results.Errors, BulkError{
				Index:   index,
				Code:    appErr.Code,
				Message: appErr.Message,
			})
			continue
		}
		result.SuccessCount++
		result.Results.Success = append(result.Results.Success, BulkSuccess{Index: index, ID: id})
	}

	return result, nil
}

func (e *Engine) bulkItem(ctx context.Context, principal *permissions.Principal, desc resources.Descriptor, operation string, raw any) (string, error) {
	switch operation {
	case BulkCreate:
		data, ok := raw.(map[string]any)
		if !ok {
			return "", appErrors.NewInvalidInput("Bulk create items must be objects")
		}
		created, err := e.Create(ctx, principal, desc, data)
		if err != nil {
			return "", err
		}
		return created.ID, nil

	case BulkUpdate:
		data, ok := raw.(map[string]any)
		if !ok {
			return "", appErrors.NewInvalidInput("Bulk update items must be objects")
		}
		id, payload, err := splitBulkUpdateItem(desc, data)
		if err != nil {
			return "", err
		}
		if _, err := e.Update(ctx, principal, desc, id, payload, nil); err != nil {
			return "", err
		}
		return id, nil

	default:
		id := bulkDeleteID(desc, raw)
		if id == "" {
			return "", appErrors.NewInvalidInput("Bulk delete items must be ids")
		}
		if err := e.Delete(ctx, principal, desc, id); err != nil {
			return "", err
		}
		return id, nil
	}
}

// splitBulkUpdateItem separates the addressing key from the change payload.
func splitBulkUpdateItem(desc resources.Descriptor, item map[string]any) (string, map[string]any, error) {
	pk := desc.PrimaryKey()
	raw, ok := item[pk]
	if !ok || raw == nil {
		return "", nil, appErrors.NewInvalidInput(fmt.Sprintf("Bulk update items must carry '%s'", pk))
	}
	id := toFilterString(raw)

	payload := make(map[string]any, len(item)-1)
	for key, value := range item {
		if key == pk {
			continue
		}
		payload[key] = value
	}
	return id, payload, nil
}

func bulkDeleteID(desc resources.Descriptor, raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case map[string]any:
		if id, ok := v[desc.PrimaryKey()]; ok && id != nil {
			return toFilterString(id)
		}
		return ""
	case float64, int, int64:
		return toFilterString(v)
	default:
		return ""
	}
}
