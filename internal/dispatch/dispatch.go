// Package dispatch routes structured commands of the form
// "<operation>_<resource>" through parsing, resource resolution,
// authorization, and execution. It is the only entry point callers get; no
// transport details leak in and no engine internals leak out.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/admingate/admingate/internal/engine"
	"github.com/admingate/admingate/internal/permissions"
	"github.com/admingate/admingate/internal/resources"
	appErrors "github.com/admingate/admingate/pkg/errors"
	"github.com/admingate/admingate/pkg/logger"
	"github.com/admingate/admingate/pkg/metrics"
)

// CommandFindResources is handled by the dispatcher itself and never resolves
// to a registered resource.
const CommandFindResources = "find_resources"

// operationActions maps each operation to the permission verb it requires.
// Bulk is absent: its verb depends on the sub-operation and is resolved in
// executeBulk.
var operationActions = map[string]permissions.Action{
	"list":     permissions.ActionView,
	"get":      permissions.ActionView,
	"describe": permissions.ActionView,
	"related":  permissions.ActionView,
	"history":  permissions.ActionView,
	"create":   permissions.ActionAdd,
	"update":   permissions.ActionChange,
	"action":   permissions.ActionChange,
	"delete":   permissions.ActionDelete,
}

// bulkActions maps bulk sub-operations to their permission verb. The check
// runs once per batch, not per item.
var bulkActions = map[string]permissions.Action{
	engine.BulkCreate: permissions.ActionAdd,
	engine.BulkUpdate: permissions.ActionChange,
	engine.BulkDelete: permissions.ActionDelete,
}

// Dispatcher executes commands against registered resources.
type Dispatcher struct {
	registry *resources.Registry
	gate     *permissions.Gate
	engine   *engine.Engine
	log      *zap.Logger
}

// New constructs a Dispatcher.
func New(registry *resources.Registry, gate *permissions.Gate, eng *engine.Engine) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("dispatch: registry is required")
	}
	if gate == nil {
		return nil, errors.New("dispatch: gate is required")
	}
	if eng == nil {
		return nil, errors.New("dispatch: engine is required")
	}
	return &Dispatcher{
		registry: registry,
		gate:     gate,
		engine:   eng,
		log:      logger.WithModule("dispatch"),
	}, nil
}

// ParseCommand splits a command into operation and resource on the first
// underscore. Resource names cannot contain the delimiter, so the split is
// unambiguous.
func ParseCommand(command string) (operation, resource string, err error) {
	command = strings.TrimSpace(command)
	idx := strings.Index(command, "_")
	if idx <= 0 || idx == len(command)-1 {
		return "", "", appErrors.NewInvalidInput(fmt.Sprintf("Malformed command '%s'", command))
	}
	return command[:idx], command[idx+1:], nil
}

// Dispatch runs one command for the given principal. The pipeline is
// parse, resolve, authorize, execute; a failure at any stage keeps later
// stages untouched, so an unparseable command never reaches the registry and
// an unauthorized one never reaches the engine.
func (d *Dispatcher) Dispatch(ctx context.Context, principal *permissions.Principal, command string, args map[string]any) (result any, err error) {
	started := time.Now()
	operation, resource := "", ""

	// Label values come from the validated operation table and the registry,
	// never from raw caller input, to keep metric cardinality bounded.
	metricOp, metricResource := "invalid", "unknown"

	defer func() {
		outcome := "success"
		if err != nil {
			outcome = appErrors.FromError(err).Code
		}
		metrics.CommandInvocations.WithLabelValues(metricOp, metricResource, outcome).Inc()
		metrics.CommandLatency.WithLabelValues(metricOp).Observe(time.Since(started).Seconds())
	}()

	if strings.TrimSpace(command) == CommandFindResources {
		metricOp, metricResource = CommandFindResources, "none"
		return d.findResources(ctx, principal, args), nil
	}

	operation, resource, err = ParseCommand(command)
	if err != nil {
		return nil, err
	}
	if _, known := operationActions[operation]; !known && operation != "bulk" {
		return nil, appErrors.NewInvalidInput(fmt.Sprintf("Unknown operation '%s'", operation))
	}
	metricOp = operation

	desc, ok := d.registry.Get(resource)
	if !ok {
		return nil, appErrors.ErrNotFound.WithMessage(fmt.Sprintf("Unknown resource '%s'", resource))
	}
	metricResource = desc.Name()

	if action, ok := operationActions[operation]; ok {
		if err := d.gate.Check(ctx, principal, desc, action); err != nil {
			return nil, err
		}
	}

	return d.execute(ctx, principal, desc, operation, args)
}

// execute runs the resolved operation. Engine panics are converted into the
// internal error code so one malformed descriptor cannot take the host down.
func (d *Dispatcher) execute(ctx context.Context, principal *permissions.Principal, desc resources.Descriptor, operation string, args map[string]any) (result any, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			d.log.Error("command execution panicked",
				zap.String("operation", operation),
				zap.String("resource", desc.Name()),
				zap.Any("panic", recovered),
			)
			result, err = nil, appErrors.ErrInternalServer
		}
	}()

	switch operation {
	case "list":
		return d.engine.List(ctx, desc, listParams(args))

	case "get":
		id, err := requireID(args)
		if err != nil {
			return nil, err
		}
		return d.engine.Get(ctx, desc, id, engine.GetOptions{
			IncludeInlines: boolArg(args, "include_inlines", true),
			IncludeRelated: boolArg(args, "include_related", true),
		})

	case "describe":
		return DescribeResource(desc), nil

	case "create":
		data, err := requireMap(args, "data")
		if err != nil {
			return nil, err
		}
		return d.engine.Create(ctx, principal, desc, data)

	case "update":
		id, err := requireID(args)
		if err != nil {
			return nil, err
		}
		data, _ := mapArg(args, "data")
		inlines, err := inlinesArg(args)
		if err != nil {
			return nil, err
		}
		return d.engine.Update(ctx, principal, desc, id, data, inlines)

	case "delete":
		id, err := requireID(args)
		if err != nil {
			return nil, err
		}
		if err := d.engine.Delete(ctx, principal, desc, id); err != nil {
			return nil, err
		}
		return map[string]any{"id": id, "deleted": true}, nil

	case "bulk":
		return d.executeBulk(ctx, principal, desc, args)

	case "action":
		name := stringArg(args, "action")
		if name == "" {
			return nil, appErrors.NewInvalidInput("Argument 'action' is required")
		}
		ids, err := idsArg(args)
		if err != nil {
			return nil, err
		}
		return d.engine.Action(ctx, principal, desc, name, ids)

	case "related":
		id, err := requireID(args)
		if err != nil {
			return nil, err
		}
		return d.engine.Related(ctx, desc, id)

	case "history":
		id, err := requireID(args)
		if err != nil {
			return nil, err
		}
		return d.engine.History(ctx, desc, id)

	default:
		return nil, appErrors.NewInvalidInput(fmt.Sprintf("Unknown operation '%s'", operation))
	}
}

// executeBulk authorizes the whole batch once against the sub-operation's
// verb, then hands the items to the engine.
func (d *Dispatcher) executeBulk(ctx context.Context, principal *permissions.Principal, desc resources.Descriptor, args map[string]any) (any, error) {
	operation := stringArg(args, "operation")
	action, ok := bulkActions[operation]
	if !ok {
		return nil, appErrors.NewInvalidInput(fmt.Sprintf("Unknown bulk operation '%s'", operation))
	}
	if err := d.gate.Check(ctx, principal, desc, action); err != nil {
		return nil, err
	}

	items, ok := args["items"].([]any)
	if !ok {
		return nil, appErrors.NewInvalidInput("Argument 'items' must be a list")
	}
	return d.engine.Bulk(ctx, principal, desc, operation, items)
}

// findResources enumerates registered resources the principal may view,
// optionally narrowed by a case-insensitive substring query. It is available
// to every caller; resources the principal cannot view are simply absent.
func (d *Dispatcher) findResources(ctx context.Context, principal *permissions.Principal, args map[string]any) map[string]any {
	query := strings.ToLower(strings.TrimSpace(stringArg(args, "query")))

	matches := make([]map[string]any, 0)
	for _, desc := range d.registry.All() {
		if query != "" && !strings.Contains(desc.Name(), query) {
			continue
		}
		if !d.gate.Allowed(ctx, principal, desc, permissions.ActionView) {
			continue
		}
		matches = append(matches, map[string]any{
			"resource": desc.Name(),
			"commands": resourceCommandNames(desc),
		})
	}

	return map[string]any{
		"count":     len(matches),
		"resources": matches,
	}
}
