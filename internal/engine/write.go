package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/permissions"
	"github.com/admingate/admingate/internal/resources"
	"github.com/admingate/admingate/internal/services"
	appErrors "github.com/admingate/admingate/pkg/errors"
)

// MutationResult reports a create or update, including the row as stored.
type MutationResult struct {
	ID      string          `json:"id"`
	Object  map[string]any  `json:"object"`
	Inlines []InlineOutcome `json:"inlines,omitempty"`
}

// InlineOutcome records what happened to one inline child during an update.
// Child failures are reported here instead of failing the parent.
type InlineOutcome struct {
	Resource string `json:"resource"`
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

const (
	inlineCreated = "created"
	inlineUpdated = "updated"
	inlineDeleted = "deleted"
	inlineFailed  = "error"
)

// Create validates and inserts a new instance. The insert and its audit
// record share one transaction.
func (e *Engine) Create(ctx context.Context, principal *permissions.Principal, desc resources.Descriptor, data map[string]any) (*MutationResult, error) {
	columns, err := normalizePayload(desc, data, false)
	if err != nil {
		return nil, err
	}
	if err := applyCreateDefaults(desc, columns); err != nil {
		return nil, err
	}

	pk := desc.PrimaryKey()
	id := strings.TrimSpace(toFilterString(columns[pk]))
	if id == "" || columns[pk] == nil {
		id = uuid.New().String()
		columns[pk] = id
	}
	e.stampTimestamps(desc, columns, true)

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(desc.TableName()).Create(columns).Error; err != nil {
			return e.mapStorageError(err, desc.Name(), "create")
		}
		return e.audit.LogTx(tx, services.AuditEntry{
			Principal:  principal,
			Resource:   desc.Name(),
			ObjectID:   id,
			ObjectRepr: resources.ObjectRepr(desc, displayRow(desc, columns)),
			Kind:       models.AuditKindCreate,
			Message:    "Created via create_" + desc.Name(),
		})
	})
	if err != nil {
		return nil, e.asAppError(err, desc.Name(), "create")
	}

	return &MutationResult{ID: id, Object: serializeRow(desc, columns)}, nil
}

// Update validates the full payload before touching the row, then applies the
// change, its audit record, and any inline cascade in one transaction. A
// rejected payload leaves the instance byte-for-byte untouched.
func (e *Engine) Update(ctx context.Context, principal *permissions.Principal, desc resources.Descriptor, id string, data map[string]any, inlines map[string][]map[string]any) (*MutationResult, error) {
	columns, err := normalizePayload(desc, data, true)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 && len(inlines) == 0 {
		return nil, appErrors.NewInvalidInput("No fields to update")
	}

	result := &MutationResult{ID: id}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := fetchRowTx(tx, e, desc, id); err != nil {
			return err
		}

		if len(columns) > 0 {
			e.stampTimestamps(desc, columns, false)
			err := tx.Table(desc.TableName()).
				Where(fmt.Sprintf("%s = ?", desc.PrimaryKey()), id).
				Updates(columns).Error
			if err != nil {
				return e.mapStorageError(err, desc.Name(), "update")
			}
		}

		if len(inlines) > 0 {
			result.Inlines = e.applyInlines(tx, principal, desc, id, inlines)
		}

		updated, err := fetchRowTx(tx, e, desc, id)
		if err != nil {
			return err
		}
		result.Object = serializeRow(desc, updated)

		return e.audit.LogTx(tx, services.AuditEntry{
			Principal:  principal,
			Resource:   desc.Name(),
			ObjectID:   id,
			ObjectRepr: resources.ObjectRepr(desc, updated),
			Kind:       models.AuditKindChange,
			Message:    updateAuditMessage(desc, columns),
		})
	})
	if err != nil {
		return nil, e.asAppError(err, desc.Name(), "update")
	}

	return result, nil
}

// Delete removes an instance. The audit record is written before the row is
// deleted, in the same transaction, so a failed delete leaves no stray entry
// and a successful one always has its trace.
func (e *Engine) Delete(ctx context.Context, principal *permissions.Principal, desc resources.Descriptor, id string) error {
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := fetchRowTx(tx, e, desc, id)
		if err != nil {
			return err
		}

		err = e.audit.LogTx(tx, services.AuditEntry{
			Principal:  principal,
			Resource:   desc.Name(),
			ObjectID:   id,
			ObjectRepr: resources.ObjectRepr(desc, row),
			Kind:       models.AuditKindDelete,
			Message:    "Deleted via delete_" + desc.Name(),
		})
		if err != nil {
			return err
		}

		err = tx.Exec(
			fmt.Sprintf("DELETE FROM %s WHERE %s = ?", desc.TableName(), desc.PrimaryKey()),
			id,
		).Error
		if err != nil {
			return e.mapStorageError(err, desc.Name(), "delete")
		}
		return nil
	})
	return e.asAppError(err, desc.Name(), "delete")
}

// applyInlines runs the inline cascade for an update. Each child operation is
// attempted independently; a failing child is recorded and does not abort its
// siblings or the parent.
func (e *Engine) applyInlines(tx *gorm.DB, principal *permissions.Principal, desc resources.Descriptor, parentID string, inlines map[string][]map[string]any) []InlineOutcome {
	declared := make(map[string]resources.Inline, len(desc.Inlines()))
	for _, inline := range desc.Inlines() {
		declared[inline.Resource] = inline
	}

	var outcomes []InlineOutcome
	for resource, items := range inlines {
		inline, ok := declared[resource]
		if !ok {
			for index := range items {
				outcomes = append(outcomes, InlineOutcome{
					Resource: resource,
					Index:    index,
					Status:   inlineFailed,
					Error:    fmt.Sprintf("'%s' is not an inline of '%s'", resource, desc.Name()),
				})
			}
			continue
		}

		child, ok := e.registry.Get(inline.Resource)
		if !ok {
			continue
		}

		for index, item := range items {
			outcomes = append(outcomes, e.applyInlineItem(tx, principal, child, inline, parentID, index, item))
		}
	}
	return outcomes
}

func (e *Engine) applyInlineItem(tx *gorm.DB, principal *permissions.Principal, child resources.Descriptor, inline resources.Inline, parentID string, index int, item map[string]any) InlineOutcome {
	outcome := InlineOutcome{Resource: child.Name(), Index: index}

	childID := ""
	if raw, ok := item[child.PrimaryKey()]; ok && raw != nil {
		childID = toFilterString(raw)
	}
	remove := truthy(item["_delete"])

	payload := make(map[string]any, len(item))
	for key, value := range item {
		if key == child.PrimaryKey() || key == "_delete" {
			continue
		}
		payload[key] = value
	}

	// Each child runs under its own savepoint so a failed statement cannot
	// poison the enclosing transaction on drivers that abort it.
	switch {
	case remove && childID == "":
		outcome.Status = inlineFailed
		outcome.Error = "_delete requires an id"
	case remove:
		outcome.ID = childID
		err := tx.Transaction(func(itemTx *gorm.DB) error {
			return e.inlineDelete(itemTx, child, childID)
		})
		if err != nil {
			outcome.Status = inlineFailed
			outcome.Error = appErrors.FromError(err).Message
		} else {
			outcome.Status = inlineDeleted
		}
	case childID != "":
		outcome.ID = childID
		err := tx.Transaction(func(itemTx *gorm.DB) error {
			return e.inlineUpdate(itemTx, child, childID, payload)
		})
		if err != nil {
			outcome.Status = inlineFailed
			outcome.Error = appErrors.FromError(err).Message
		} else {
			outcome.Status = inlineUpdated
		}
	default:
		payload[inline.FKField] = parentID
		var id string
		err := tx.Transaction(func(itemTx *gorm.DB) error {
			created, itemErr := e.inlineCreate(itemTx, child, payload)
			id = created
			return itemErr
		})
		if err != nil {
			outcome.Status = inlineFailed
			outcome.Error = appErrors.FromError(err).Message
		} else {
			outcome.Status = inlineCreated
			outcome.ID = id
		}
	}
	return outcome
}

func (e *Engine) inlineCreate(tx *gorm.DB, child resources.Descriptor, data map[string]any) (string, error) {
	columns, err := normalizePayload(child, data, false)
	if err != nil {
		return "", err
	}
	if err := applyCreateDefaults(child, columns); err != nil {
		return "", err
	}
	id := uuid.New().String()
	columns[child.PrimaryKey()] = id
	e.stampTimestamps(child, columns, true)
	if err := tx.Table(child.TableName()).Create(columns).Error; err != nil {
		return "", e.mapStorageError(err, child.Name(), "create")
	}
	return id, nil
}

func (e *Engine) inlineUpdate(tx *gorm.DB, child resources.Descriptor, id string, data map[string]any) error {
	columns, err := normalizePayload(child, data, true)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return appErrors.NewInvalidInput("No fields to update")
	}
	if _, err := fetchRowTx(tx, e, child, id); err != nil {
		return err
	}
	e.stampTimestamps(child, columns, false)
	err = tx.Table(child.TableName()).
		Where(fmt.Sprintf("%s = ?", child.PrimaryKey()), id).
		Updates(columns).Error
	if err != nil {
		return e.mapStorageError(err, child.Name(), "update")
	}
	return nil
}

func (e *Engine) inlineDelete(tx *gorm.DB, child resources.Descriptor, id string) error {
	if _, err := fetchRowTx(tx, e, child, id); err != nil {
		return err
	}
	err := tx.Exec(
		fmt.Sprintf("DELETE FROM %s WHERE %s = ?", child.TableName(), child.PrimaryKey()),
		id,
	).Error
	if err != nil {
		return e.mapStorageError(err, child.Name(), "delete")
	}
	return nil
}

// asAppError keeps already-mapped errors intact and routes anything else,
// such as a transaction commit failure, through the storage mapping.
func (e *Engine) asAppError(err error, resource, operation string) error {
	if err == nil {
		return nil
	}
	return e.mapStorageError(err, resource, operation)
}

// updateAuditMessage names the changed fields, or signals an inline-only
// update when no parent column was touched.
func updateAuditMessage(desc resources.Descriptor, columns map[string]any) string {
	changed := changedFieldNames(desc, columns)
	if len(changed) == 0 {
		return "Changed inline items"
	}
	return "Changed fields: " + strings.Join(changed, ", ")
}

// changedFieldNames converts applied columns back to logical names for the
// audit message.
func changedFieldNames(desc resources.Descriptor, columns map[string]any) []string {
	names := make([]string, 0, len(columns))
	for column := range columns {
		if column == "updated_at" {
			continue
		}
		if field, ok := resources.FieldByName(desc, column); ok {
			names = append(names, field.Name)
		} else {
			names = append(names, column)
		}
	}
	sort.Strings(names)
	return names
}

// displayRow exposes column values under logical names for ObjectRepr.
func displayRow(desc resources.Descriptor, columns map[string]any) map[string]any {
	row := make(map[string]any, len(columns))
	for _, field := range desc.Fields() {
		if value, ok := columns[field.ColumnName()]; ok {
			row[field.Name] = value
		}
	}
	if value, ok := columns[desc.PrimaryKey()]; ok {
		row[desc.PrimaryKey()] = value
	}
	return row
}
