package resources

import (
	"strings"

	"gorm.io/gorm"
)

// FieldType enumerates the schema types a resource field may carry.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldText     FieldType = "text"
	FieldInteger  FieldType = "integer"
	FieldFloat    FieldType = "float"
	FieldBoolean  FieldType = "boolean"
	FieldDateTime FieldType = "datetime"
	FieldJSON     FieldType = "json"
	FieldRelation FieldType = "relation"
)

// Choice restricts a field to an enumerated set of values.
type Choice struct {
	Value any    `json:"value"`
	Label string `json:"label"`
}

// Field describes one column of a registered resource.
type Field struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Unique   bool      `json:"unique,omitempty"`
	ReadOnly bool      `json:"read_only,omitempty"`
	// Hidden fields are writable but never serialised in responses.
	Hidden  bool     `json:"-"`
	Choices []Choice `json:"choices,omitempty"`

	// Relation names the target resource for foreign-key fields.
	Relation string `json:"relation,omitempty"`

	// Column overrides the database column name. Relation fields default to
	// "<name>_id", everything else to the field name.
	Column string `json:"-"`

	// Default, when HasDefault is set, is applied to create payloads that
	// omit the field.
	Default    any  `json:"default,omitempty"`
	HasDefault bool `json:"-"`
}

// ColumnName resolves the database column backing the field.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	if f.Relation != "" {
		return f.Name + "_id"
	}
	return f.Name
}

// Inline declares a child resource edited alongside its parent.
type Inline struct {
	Resource string `json:"resource"`
	// FKField is the child field referencing the parent.
	FKField string `json:"fk_field"`
}

// ActionFunc executes a named side-effecting operation against the rows
// matched by ids, inside the supplied transaction.
type ActionFunc func(tx *gorm.DB, desc Descriptor, ids []string) (string, error)

// Action is a named operation a caller may invoke on selected instances.
type Action struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Handler     ActionFunc `json:"-"`
}

// Descriptor supplies schema and admin-style configuration for one resource.
// Implementations are expected to be immutable after registration.
type Descriptor interface {
	// Name is the registry key, lowercase and free of the command delimiter.
	Name() string
	TableName() string
	PrimaryKey() string
	// Fields returns ordered field metadata, including the primary key.
	Fields() []Field
	SearchFields() []string
	DefaultOrdering() []string
	ReadOnlyFields() []string
	Inlines() []Inline
	Actions() []Action
}

// Definition is the declarative Descriptor implementation used for concrete
// resources; it replaces runtime schema introspection with explicit metadata.
type Definition struct {
	ResourceName string
	Table        string
	PK           string
	FieldList    []Field
	Search       []string
	Ordering     []string
	InlineDefs   []Inline
	ActionDefs   []Action

	// DisplayField names the field used for human-readable object
	// descriptions in audit records. Falls back to the primary key.
	DisplayField string
}

var _ Descriptor = (*Definition)(nil)

func (d *Definition) Name() string      { return strings.ToLower(strings.TrimSpace(d.ResourceName)) }
func (d *Definition) TableName() string { return d.Table }

func (d *Definition) PrimaryKey() string {
	if d.PK == "" {
		return "id"
	}
	return d.PK
}

func (d *Definition) Fields() []Field           { return d.FieldList }
func (d *Definition) SearchFields() []string    { return d.Search }
func (d *Definition) DefaultOrdering() []string { return d.Ordering }
func (d *Definition) Inlines() []Inline         { return d.InlineDefs }
func (d *Definition) Actions() []Action         { return d.ActionDefs }

func (d *Definition) ReadOnlyFields() []string {
	out := make([]string, 0, 4)
	for _, field := range d.FieldList {
		if field.ReadOnly {
			out = append(out, field.Name)
		}
	}
	return out
}

// FieldByName resolves a field by its logical name or its column name, which
// lets callers address relation fields by the column-style "<name>_id" form.
func FieldByName(desc Descriptor, name string) (Field, bool) {
	for _, field := range desc.Fields() {
		if field.Name == name || field.ColumnName() == name {
			return field, true
		}
	}
	return Field{}, false
}

// ObjectRepr produces the short human-readable description stored in audit
// records, preferring the descriptor's display field when it is a Definition.
func ObjectRepr(desc Descriptor, row map[string]any) string {
	display := ""
	if def, ok := desc.(*Definition); ok {
		display = def.DisplayField
	}
	if display != "" {
		if value, ok := row[display]; ok && value != nil {
			return truncateRepr(toString(value))
		}
	}
	if value, ok := row[desc.PrimaryKey()]; ok && value != nil {
		return truncateRepr(desc.Name() + " " + toString(value))
	}
	return desc.Name()
}
