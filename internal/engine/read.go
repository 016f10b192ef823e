package engine

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/resources"
	appErrors "github.com/admingate/admingate/pkg/errors"
)

// GetResult carries an instance together with optionally attached inline
// children and reverse relations.
type GetResult struct {
	Object  map[string]any              `json:"object"`
	Inlines map[string][]map[string]any `json:"inlines,omitempty"`
	Related []RelatedGroup              `json:"related,omitempty"`
}

// RelatedGroup lists rows of another resource referencing this instance.
type RelatedGroup struct {
	// Resource is the referencing resource; Field is its relation field.
	Resource string `json:"resource"`
	Field    string `json:"field"`
	// TotalCount is the full match count; Rows is capped.
	TotalCount int64            `json:"total_count"`
	Rows       []map[string]any `json:"rows"`
}

// GetOptions controls which attachments Get loads.
type GetOptions struct {
	IncludeInlines bool
	IncludeRelated bool
}

// Get fetches a single instance by primary key. A missing instance is a
// distinct not_found, never an empty result.
func (e *Engine) Get(ctx context.Context, desc resources.Descriptor, id string, opts GetOptions) (*GetResult, error) {
	row, err := e.fetchRow(ctx, desc, id)
	if err != nil {
		return nil, err
	}

	result := &GetResult{Object: serializeRow(desc, row)}

	if opts.IncludeInlines && len(desc.Inlines()) > 0 {
		inlines, err := e.loadInlines(ctx, desc, id)
		if err != nil {
			return nil, err
		}
		result.Inlines = inlines
	}

	if opts.IncludeRelated {
		related, err := e.loadRelated(ctx, desc, id)
		if err != nil {
			return nil, err
		}
		result.Related = related
	}

	return result, nil
}

// Related returns every registered resource's rows that reference the
// instance, each relation capped independently.
func (e *Engine) Related(ctx context.Context, desc resources.Descriptor, id string) ([]RelatedGroup, error) {
	if _, err := e.fetchRow(ctx, desc, id); err != nil {
		return nil, err
	}
	return e.loadRelated(ctx, desc, id)
}

// History returns the instance's audit trail, newest first. Existence is not
// checked: deleted instances keep their history.
func (e *Engine) History(ctx context.Context, desc resources.Descriptor, id string) ([]models.AuditLog, error) {
	entries, err := e.audit.HistoryFor(ctx, desc.Name(), id)
	if err != nil {
		return nil, e.mapStorageError(err, desc.Name(), "history")
	}
	return entries, nil
}

func (e *Engine) fetchRow(ctx context.Context, desc resources.Descriptor, id string) (map[string]any, error) {
	return fetchRowTx(e.db.WithContext(ctx), e, desc, id)
}

func fetchRowTx(tx *gorm.DB, e *Engine, desc resources.Descriptor, id string) (map[string]any, error) {
	row := map[string]any{}
	err := tx.Table(desc.TableName()).
		Where(fmt.Sprintf("%s = ?", desc.PrimaryKey()), id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrNotFound.WithMessage(fmt.Sprintf("%s with id '%s' not found", desc.Name(), id))
		}
		return nil, e.mapStorageError(err, desc.Name(), "get")
	}
	return row, nil
}

func (e *Engine) loadInlines(ctx context.Context, desc resources.Descriptor, id string) (map[string][]map[string]any, error) {
	out := make(map[string][]map[string]any, len(desc.Inlines()))
	for _, inline := range desc.Inlines() {
		child, ok := e.registry.Get(inline.Resource)
		if !ok {
			e.log.Warn("inline references unregistered resource")
			continue
		}
		fkColumn := inlineFKColumn(child, inline.FKField)

		var rows []map[string]any
		err := e.db.WithContext(ctx).
			Table(child.TableName()).
			Where(fmt.Sprintf("%s = ?", fkColumn), id).
			Find(&rows).Error
		if err != nil {
			return nil, e.mapStorageError(err, child.Name(), "get")
		}

		serialized := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			serialized = append(serialized, serializeRow(child, row))
		}
		out[child.Name()] = serialized
	}
	return out, nil
}

func (e *Engine) loadRelated(ctx context.Context, desc resources.Descriptor, id string) ([]RelatedGroup, error) {
	var groups []RelatedGroup
	for _, other := range e.registry.All() {
		if other.Name() == desc.Name() {
			continue
		}
		for _, field := range other.Fields() {
			if field.Relation != desc.Name() {
				continue
			}

			base := e.db.WithContext(ctx).
				Table(other.TableName()).
				Where(fmt.Sprintf("%s = ?", field.ColumnName()), id)

			var total int64
			if err := base.Count(&total).Error; err != nil {
				return nil, e.mapStorageError(err, other.Name(), "related")
			}

			var rows []map[string]any
			if err := base.Limit(relatedRowCap).Find(&rows).Error; err != nil {
				return nil, e.mapStorageError(err, other.Name(), "related")
			}

			serialized := make([]map[string]any, 0, len(rows))
			for _, row := range rows {
				serialized = append(serialized, serializeRow(other, row))
			}
			groups = append(groups, RelatedGroup{
				Resource:   other.Name(),
				Field:      field.Name,
				TotalCount: total,
				Rows:       serialized,
			})
		}
	}
	return groups, nil
}

func inlineFKColumn(child resources.Descriptor, fkField string) string {
	if field, ok := resources.FieldByName(child, fkField); ok {
		return field.ColumnName()
	}
	return fkField
}
