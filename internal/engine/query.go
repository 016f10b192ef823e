package engine

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/resources"
	appErrors "github.com/admingate/admingate/pkg/errors"
)

// ListParams collects the optional query controls for a list operation.
type ListParams struct {
	// Filters are conjunctive field[__lookup] pairs. Keys naming fields the
	// descriptor does not declare are dropped without error.
	Filters map[string]any
	// Search applies a case-insensitive contains match across the
	// descriptor's declared search fields, disjunctively.
	Search string
	// OrderBy entries are field names, "-" prefixed for descending. Entries
	// failing field validation cause a fallback to the default ordering.
	OrderBy []string
	Limit   int
	Offset  int
}

// ListResult is the page returned by List.
type ListResult struct {
	// Count is the number of rows in this page.
	Count int `json:"count"`
	// TotalCount is the match count before pagination; it is unaffected by
	// limit and offset.
	TotalCount int64            `json:"total_count"`
	Results    []map[string]any `json:"results"`
}

var filterLookups = map[string]struct{}{
	"eq": {}, "icontains": {}, "gte": {}, "lte": {}, "in": {}, "isnull": {},
}

// List returns a filtered, searched, ordered page of resource rows.
func (e *Engine) List(ctx context.Context, desc resources.Descriptor, params ListParams) (*ListResult, error) {
	query := e.db.WithContext(ctx).Table(desc.TableName())

	query, err := applyFilters(query, desc, params.Filters)
	if err != nil {
		return nil, err
	}
	query = applySearch(query, desc, params.Search)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, e.mapStorageError(err, desc.Name(), "list")
	}

	query = applyOrdering(query, desc, params.OrderBy)

	limit := params.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query = query.Limit(limit)
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}

	var rows []map[string]any
	if err := query.Find(&rows).Error; err != nil {
		return nil, e.mapStorageError(err, desc.Name(), "list")
	}

	results := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		results = append(results, serializeRow(desc, row))
	}

	return &ListResult{
		Count:      len(results),
		TotalCount: total,
		Results:    results,
	}, nil
}

// applyFilters adds one conjunctive condition per recognised filter key.
// Filter keys are "<field>" or "<field>__<lookup>"; unknown fields are
// silently ignored so callers can probe schemas without tripping errors, while
// unknown lookup suffixes on known fields are rejected.
func applyFilters(query *gorm.DB, desc resources.Descriptor, filters map[string]any) (*gorm.DB, error) {
	for key, value := range filters {
		name, lookup := key, "eq"
		if idx := strings.Index(key, "__"); idx >= 0 {
			name, lookup = key[:idx], key[idx+2:]
		}

		field, ok := resources.FieldByName(desc, name)
		if !ok {
			if name == desc.PrimaryKey() {
				field = resources.Field{Name: name}
			} else {
				continue
			}
		}

		if _, ok := filterLookups[lookup]; !ok {
			return nil, appErrors.NewInvalidInput(fmt.Sprintf("Unsupported filter lookup '%s'", lookup))
		}

		column := field.ColumnName()
		switch lookup {
		case "eq":
			query = query.Where(fmt.Sprintf("%s = ?", column), value)
		case "icontains":
			pattern := "%" + strings.ToLower(toFilterString(value)) + "%"
			query = query.Where(fmt.Sprintf("LOWER(%s) LIKE ?", column), pattern)
		case "gte":
			query = query.Where(fmt.Sprintf("%s >= ?", column), value)
		case "lte":
			query = query.Where(fmt.Sprintf("%s <= ?", column), value)
		case "in":
			values, err := toSlice(value)
			if err != nil {
				return nil, appErrors.NewInvalidInput(fmt.Sprintf("Filter '%s' requires a list value", key))
			}
			query = query.Where(fmt.Sprintf("%s IN ?", column), values)
		case "isnull":
			if truthy(value) {
				query = query.Where(fmt.Sprintf("%s IS NULL", column))
			} else {
				query = query.Where(fmt.Sprintf("%s IS NOT NULL", column))
			}
		}
	}
	return query, nil
}

// applySearch adds a disjunctive case-insensitive contains condition across
// the declared search fields. Undeclared search fields never participate, so
// hidden columns cannot be probed through search.
func applySearch(query *gorm.DB, desc resources.Descriptor, search string) *gorm.DB {
	search = strings.TrimSpace(search)
	if search == "" || len(desc.SearchFields()) == 0 {
		return query
	}

	pattern := "%" + strings.ToLower(search) + "%"
	var clauses []string
	var args []any
	for _, name := range desc.SearchFields() {
		field, ok := resources.FieldByName(desc, name)
		if !ok {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("LOWER(%s) LIKE ?", field.ColumnName()))
		args = append(args, pattern)
	}
	if len(clauses) == 0 {
		return query
	}
	return query.Where(strings.Join(clauses, " OR "), args...)
}

// applyOrdering validates the requested ordering against the field set and
// falls back to the descriptor's default ordering, then to the primary key.
func applyOrdering(query *gorm.DB, desc resources.Descriptor, orderBy []string) *gorm.DB {
	clauses := orderClauses(desc, orderBy)
	if clauses == nil {
		clauses = orderClauses(desc, desc.DefaultOrdering())
	}
	if clauses == nil {
		clauses = []string{desc.PrimaryKey()}
	}
	for _, clause := range clauses {
		query = query.Order(clause)
	}
	return query
}

// orderClauses returns nil when any entry names an unknown field, which
// triggers the caller's fallback chain.
func orderClauses(desc resources.Descriptor, orderBy []string) []string {
	if len(orderBy) == 0 {
		return nil
	}
	clauses := make([]string, 0, len(orderBy))
	for _, entry := range orderBy {
		entry = strings.TrimSpace(entry)
		descending := strings.HasPrefix(entry, "-")
		name := strings.TrimPrefix(entry, "-")

		column := ""
		if name == desc.PrimaryKey() {
			column = name
		} else if field, ok := resources.FieldByName(desc, name); ok {
			column = field.ColumnName()
		} else {
			return nil
		}

		if descending {
			column += " DESC"
		}
		clauses = append(clauses, column)
	}
	return clauses
}

func toFilterString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func toSlice(value any) ([]any, error) {
	switch v := value.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a list: %T", value)
	}
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case nil:
		return false
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	default:
		return false
	}
}
