package engine

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/permissions"
	"github.com/admingate/admingate/internal/resources"
	"github.com/admingate/admingate/internal/services"
	appErrors "github.com/admingate/admingate/pkg/errors"
)

// ActionDeleteSelected is available on every resource without declaration.
const ActionDeleteSelected = "delete_selected"

// ActionResult reports a named action applied to selected instances.
type ActionResult struct {
	Action        string `json:"action"`
	Message       string `json:"message"`
	AffectedCount int    `json:"affected_count"`
}

// Action runs a named action against the instances matching ids. The whole
// batch shares one transaction: actions are all-or-nothing, unlike bulk
// operations.
func (e *Engine) Action(ctx context.Context, principal *permissions.Principal, desc resources.Descriptor, name string, ids []string) (*ActionResult, error) {
	if len(ids) == 0 {
		return nil, appErrors.NewInvalidInput("Action requires at least one id")
	}

	if name == ActionDeleteSelected {
		return e.deleteSelected(ctx, principal, desc, ids)
	}

	var handler resources.ActionFunc
	for _, action := range desc.Actions() {
		if action.Name == name {
			handler = action.Handler
			break
		}
	}
	if handler == nil {
		return nil, appErrors.NewInvalidInput(fmt.Sprintf("Unknown action '%s' for resource '%s'", name, desc.Name()))
	}

	matched, err := e.matchIDs(ctx, desc, ids)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, appErrors.ErrNotFound.WithMessage("No matching instances for action")
	}

	var message string
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		message, err = handler(tx, desc, matched)
		return err
	})
	if err != nil {
		return nil, e.asAppError(err, desc.Name(), "action")
	}

	return &ActionResult{
		Action:        name,
		Message:       message,
		AffectedCount: len(matched),
	}, nil
}

// deleteSelected removes every matched instance with a per-object audit row,
// all inside one transaction. Unmatched ids are skipped, mirroring a
// selection that went stale between listing and acting.
func (e *Engine) deleteSelected(ctx context.Context, principal *permissions.Principal, desc resources.Descriptor, ids []string) (*ActionResult, error) {
	affected := 0
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		pk := desc.PrimaryKey()
		var rows []map[string]any
		err := tx.Table(desc.TableName()).
			Where(fmt.Sprintf("%s IN ?", pk), ids).
			Find(&rows).Error
		if err != nil {
			return e.mapStorageError(err, desc.Name(), "action")
		}
		if len(rows) == 0 {
			return appErrors.ErrNotFound.WithMessage("No matching instances for action")
		}

		for _, row := range rows {
			id := toFilterString(row[pk])
			err := e.audit.LogTx(tx, services.AuditEntry{
				Principal:  principal,
				Resource:   desc.Name(),
				ObjectID:   id,
				ObjectRepr: resources.ObjectRepr(desc, row),
				Kind:       models.AuditKindDelete,
				Message:    "Deleted via delete_selected",
			})
			if err != nil {
				return err
			}
			err = tx.Exec(
				fmt.Sprintf("DELETE FROM %s WHERE %s = ?", desc.TableName(), pk),
				id,
			).Error
			if err != nil {
				return e.mapStorageError(err, desc.Name(), "action")
			}
		}
		affected = len(rows)
		return nil
	})
	if err != nil {
		return nil, e.asAppError(err, desc.Name(), "action")
	}

	return &ActionResult{
		Action:        ActionDeleteSelected,
		Message:       fmt.Sprintf("Deleted %d %s instance(s)", affected, desc.Name()),
		AffectedCount: affected,
	}, nil
}

func (e *Engine) matchIDs(ctx context.Context, desc resources.Descriptor, ids []string) ([]string, error) {
	pk := desc.PrimaryKey()
	var rows []map[string]any
	err := e.db.WithContext(ctx).
		Table(desc.TableName()).
		Select(pk).
		Where(fmt.Sprintf("%s IN ?", pk), ids).
		Find(&rows).Error
	if err != nil {
		return nil, e.mapStorageError(err, desc.Name(), "action")
	}
	matched := make([]string, 0, len(rows))
	for _, row := range rows {
		matched = append(matched, toFilterString(row[pk]))
	}
	return matched, nil
}
