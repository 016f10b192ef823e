package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/admingate/admingate/internal/resources"
	appErrors "github.com/admingate/admingate/pkg/errors"
)

// serializeRow converts a raw column map into the caller-facing shape: logical
// field names as keys, hidden fields removed, byte columns decoded.
func serializeRow(desc resources.Descriptor, row map[string]any) map[string]any {
	if row == nil {
		return nil
	}

	out := make(map[string]any, len(row))
	for _, field := range desc.Fields() {
		if field.Hidden {
			continue
		}
		value, ok := row[field.ColumnName()]
		if !ok {
			continue
		}
		out[field.Name] = presentValue(value)
	}

	pk := desc.PrimaryKey()
	if _, ok := out[pk]; !ok {
		if value, ok := row[pk]; ok {
			out[pk] = presentValue(value)
		}
	}
	return out
}

func presentValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case *time.Time:
		if v == nil {
			return nil
		}
		return v.UTC().Format(time.RFC3339)
	default:
		return v
	}
}

// normalizePayload maps caller keys (logical names or column-style "<name>_id"
// forms) to database columns, rejecting anything the descriptor does not
// declare as writable. forUpdate additionally treats primary-key assignment as
// a validation failure. Nothing is mutated before the whole payload validates.
func normalizePayload(desc resources.Descriptor, data map[string]any, forUpdate bool) (map[string]any, error) {
	pk := desc.PrimaryKey()
	columns := make(map[string]any, len(data))

	for key, value := range data {
		field, ok := resources.FieldByName(desc, key)
		if !ok {
			if key == pk {
				if forUpdate {
					return nil, appErrors.NewValidation(fmt.Sprintf("Field '%s' is the primary key and cannot be changed", key))
				}
				columns[pk] = value
				continue
			}
			return nil, appErrors.ErrInvalidField.WithMessage(fmt.Sprintf("Unknown field '%s' for resource '%s'", key, desc.Name()))
		}
		if field.Name == pk && forUpdate {
			return nil, appErrors.NewValidation(fmt.Sprintf("Field '%s' is the primary key and cannot be changed", field.Name))
		}
		if field.ReadOnly {
			return nil, appErrors.NewValidation(fmt.Sprintf("Field '%s' is read-only", field.Name))
		}
		if err := validateChoice(field, value); err != nil {
			return nil, err
		}
		columns[field.ColumnName()] = value
	}

	return columns, nil
}

// applyCreateDefaults fills declared defaults and checks required fields for a
// create payload already keyed by column name.
func applyCreateDefaults(desc resources.Descriptor, columns map[string]any) error {
	pk := desc.PrimaryKey()
	var missing []string

	for _, field := range desc.Fields() {
		if field.Name == pk || field.ReadOnly {
			continue
		}
		column := field.ColumnName()
		if value, ok := columns[column]; ok && value != nil {
			continue
		}
		if field.HasDefault {
			columns[column] = field.Default
			continue
		}
		if field.Required {
			missing = append(missing, field.Name)
		}
	}

	if len(missing) > 0 {
		return appErrors.NewValidation("Missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

func validateChoice(field resources.Field, value any) error {
	if len(field.Choices) == 0 || value == nil {
		return nil
	}
	for _, choice := range field.Choices {
		if fmt.Sprintf("%v", choice.Value) == fmt.Sprintf("%v", value) {
			return nil
		}
	}
	return appErrors.NewValidation(fmt.Sprintf("Invalid choice for field '%s'", field.Name))
}

// stampTimestamps sets conventional timestamp columns when the descriptor
// declares them and the payload left them empty.
func (e *Engine) stampTimestamps(desc resources.Descriptor, columns map[string]any, creating bool) {
	now := e.now().UTC()
	if creating {
		if _, declared := resources.FieldByName(desc, "created_at"); declared {
			if _, ok := columns["created_at"]; !ok {
				columns["created_at"] = now
			}
		}
	}
	if _, declared := resources.FieldByName(desc, "updated_at"); declared {
		columns["updated_at"] = now
	}
}
