package dispatch

import (
	"fmt"
	"strings"

	"github.com/admingate/admingate/internal/engine"
	appErrors "github.com/admingate/admingate/pkg/errors"
)

// Argument helpers tolerate the loose typing of decoded JSON payloads:
// numbers arrive as float64, lists as []any.

func stringArg(args map[string]any, key string) string {
	value, ok := args[key]
	if !ok || value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	value, ok := args[key]
	if !ok || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	default:
		return fallback
	}
}

func mapArg(args map[string]any, key string) (map[string]any, bool) {
	value, ok := args[key].(map[string]any)
	return value, ok
}

func requireMap(args map[string]any, key string) (map[string]any, error) {
	value, ok := mapArg(args, key)
	if !ok || len(value) == 0 {
		return nil, appErrors.NewInvalidInput(fmt.Sprintf("Argument '%s' is required", key))
	}
	return value, nil
}

func requireID(args map[string]any) (string, error) {
	id := strings.TrimSpace(stringArg(args, "id"))
	if id == "" {
		return "", appErrors.NewInvalidInput("Argument 'id' is required")
	}
	return id, nil
}

func idsArg(args map[string]any) ([]string, error) {
	raw, ok := args["ids"]
	if !ok || raw == nil {
		return nil, appErrors.NewInvalidInput("Argument 'ids' is required")
	}
	switch v := raw.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out, nil
	default:
		return nil, appErrors.NewInvalidInput("Argument 'ids' must be a list")
	}
}

func stringsArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

func listParams(args map[string]any) engine.ListParams {
	filters, _ := mapArg(args, "filters")
	return engine.ListParams{
		Filters: filters,
		Search:  stringArg(args, "search"),
		OrderBy: stringsArg(args, "order_by"),
		Limit:   intArg(args, "limit"),
		Offset:  intArg(args, "offset"),
	}
}

func inlinesArg(args map[string]any) (map[string][]map[string]any, error) {
	raw, ok := args["inlines"]
	if !ok || raw == nil {
		return nil, nil
	}
	byResource, ok := raw.(map[string]any)
	if !ok {
		return nil, appErrors.NewInvalidInput("Argument 'inlines' must map resources to item lists")
	}

	out := make(map[string][]map[string]any, len(byResource))
	for resource, rawItems := range byResource {
		items, ok := rawItems.([]any)
		if !ok {
			return nil, appErrors.NewInvalidInput("Argument 'inlines' must map resources to item lists")
		}
		converted := make([]map[string]any, 0, len(items))
		for _, rawItem := range items {
			item, ok := rawItem.(map[string]any)
			if !ok {
				return nil, appErrors.NewInvalidInput("Inline items must be objects")
			}
			converted = append(converted, item)
		}
		out[resource] = converted
	}
	return out, nil
}
