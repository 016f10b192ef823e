package dispatch

import (
	"fmt"

	"github.com/admingate/admingate/internal/resources"
)

// CommandSpec is the machine-readable description of one command, shaped for
// tool-listing endpoints.
type CommandSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// standardOperations lists the per-resource operations in presentation order.
var standardOperations = []string{
	"list", "get", "create", "update", "delete",
	"describe", "action", "bulk", "related", "history",
}

// Commands enumerates every invokable command: the full standard operation
// set per registered resource plus find_resources. Enumeration is not
// permission-filtered; invocation is where authorization happens.
func (d *Dispatcher) Commands() []CommandSpec {
	specs := []CommandSpec{{
		Name:        CommandFindResources,
		Description: "Discover registered resources available to the caller",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": property("string", "Optional substring to match against resource names"),
			},
		},
	}}

	for _, desc := range d.registry.All() {
		for _, operation := range standardOperations {
			specs = append(specs, commandSpec(desc, operation))
		}
	}
	return specs
}

func resourceCommandNames(desc resources.Descriptor) []string {
	names := make([]string, 0, len(standardOperations))
	for _, operation := range standardOperations {
		names = append(names, operation+"_"+desc.Name())
	}
	return names
}

func commandSpec(desc resources.Descriptor, operation string) CommandSpec {
	name := operation + "_" + desc.Name()
	properties := map[string]any{}
	var required []string

	switch operation {
	case "list":
		properties["filters"] = property("object", "Conjunctive field filters, optionally suffixed with __icontains, __gte, __lte, __in, or __isnull")
		properties["search"] = property("string", "Case-insensitive search across "+fmt.Sprint(desc.SearchFields()))
		properties["order_by"] = property("array", "Field names to order by, '-' prefix for descending")
		properties["limit"] = property("integer", "Page size, default 100")
		properties["offset"] = property("integer", "Rows to skip")
	case "get":
		properties["id"] = property("string", "Primary key of the instance")
		properties["include_inlines"] = property("boolean", "Attach inline children, default true")
		properties["include_related"] = property("boolean", "Attach referencing rows, default true")
		required = append(required, "id")
	case "create":
		properties["data"] = dataSchema(desc, false)
		required = append(required, "data")
	case "update":
		properties["id"] = property("string", "Primary key of the instance")
		properties["data"] = dataSchema(desc, true)
		if len(desc.Inlines()) > 0 {
			properties["inlines"] = property("object", "Inline child edits keyed by resource; items carry fields, an optional id, and an optional _delete flag")
		}
		required = append(required, "id")
	case "delete":
		properties["id"] = property("string", "Primary key of the instance")
		required = append(required, "id")
	case "describe":
		// No parameters.
	case "action":
		properties["action"] = actionProperty(desc)
		properties["ids"] = property("array", "Primary keys of the selected instances")
		required = append(required, "action", "ids")
	case "bulk":
		properties["operation"] = map[string]any{
			"type":        "string",
			"enum":        []string{"create", "update", "delete"},
			"description": "Sub-operation applied to every item",
		}
		properties["items"] = property("array", "Items to process; each failure is reported by index without affecting the rest")
		required = append(required, "operation", "items")
	case "related", "history":
		properties["id"] = property("string", "Primary key of the instance")
		required = append(required, "id")
	}

	parameters := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		parameters["required"] = required
	}

	return CommandSpec{
		Name:        name,
		Description: fmt.Sprintf("%s operation on resource '%s'", operation, desc.Name()),
		Parameters:  parameters,
	}
}

// DescribeResource builds the full schema document returned by describe_<r>.
func DescribeResource(desc resources.Descriptor) map[string]any {
	fields := make([]map[string]any, 0, len(desc.Fields()))
	for _, field := range desc.Fields() {
		if field.Hidden {
			continue
		}
		entry := map[string]any{
			"name":     field.Name,
			"type":     string(field.Type),
			"required": field.Required,
		}
		if field.Unique {
			entry["unique"] = true
		}
		if field.ReadOnly {
			entry["read_only"] = true
		}
		if field.Relation != "" {
			entry["relation"] = field.Relation
		}
		if len(field.Choices) > 0 {
			entry["choices"] = field.Choices
		}
		if field.HasDefault {
			entry["default"] = field.Default
		}
		fields = append(fields, entry)
	}

	actions := []map[string]string{{
		"name":        "delete_selected",
		"description": "Delete the selected instances",
	}}
	for _, action := range desc.Actions() {
		actions = append(actions, map[string]string{
			"name":        action.Name,
			"description": action.Description,
		})
	}

	inlines := make([]map[string]string, 0, len(desc.Inlines()))
	for _, inline := range desc.Inlines() {
		inlines = append(inlines, map[string]string{
			"resource": inline.Resource,
			"fk_field": inline.FKField,
		})
	}

	return map[string]any{
		"resource":         desc.Name(),
		"primary_key":      desc.PrimaryKey(),
		"fields":           fields,
		"search_fields":    desc.SearchFields(),
		"default_ordering": desc.DefaultOrdering(),
		"actions":          actions,
		"inlines":          inlines,
	}
}

func dataSchema(desc resources.Descriptor, forUpdate bool) map[string]any {
	properties := map[string]any{}
	var required []string
	for _, field := range desc.Fields() {
		if field.ReadOnly || field.Name == desc.PrimaryKey() {
			continue
		}
		description := string(field.Type)
		if field.Relation != "" {
			description = "id of a '" + field.Relation + "' instance"
		}
		properties[field.Name] = property(jsonType(field.Type), description)
		if field.Required && !forUpdate {
			required = append(required, field.Name)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func actionProperty(desc resources.Descriptor) map[string]any {
	names := []string{"delete_selected"}
	for _, action := range desc.Actions() {
		names = append(names, action.Name)
	}
	return map[string]any{
		"type":        "string",
		"enum":        names,
		"description": "Named action to apply",
	}
}

func property(kind, description string) map[string]any {
	return map[string]any{
		"type":        kind,
		"description": description,
	}
}

func jsonType(fieldType resources.FieldType) string {
	switch fieldType {
	case resources.FieldInteger:
		return "integer"
	case resources.FieldFloat:
		return "number"
	case resources.FieldBoolean:
		return "boolean"
	case resources.FieldJSON:
		return "object"
	default:
		return "string"
	}
}
