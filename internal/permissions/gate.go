package permissions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/resources"
	appErrors "github.com/admingate/admingate/pkg/errors"
	"github.com/admingate/admingate/pkg/metrics"
)

// Action is the permission verb an operation maps to.
type Action string

const (
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionDelete Action = "delete"
)

// Actions lists the standard permission verbs in declaration order.
var Actions = []Action{ActionView, ActionAdd, ActionChange, ActionDelete}

// Policy decides the outcome when no principal is present, and when a
// descriptor declares no policy of its own and the principal holds no
// matching grant.
type Policy string

const (
	// PolicyAllow preserves the historical behaviour: unauthenticated and
	// service paths pass every check. It is not a hard security boundary.
	PolicyAllow Policy = "allow"
	PolicyDeny  Policy = "deny"
)

// Principal is the authenticated actor behind a command invocation. Identity
// comes from a verified access token; UserID is audit attribution only.
type Principal struct {
	TokenID string
	Name    string
	UserID  *string
}

// ResourcePolicy lets a descriptor take over its own permission decision.
// Descriptors that do not implement it fall back to the principal's effective
// permission set.
type ResourcePolicy interface {
	HasPermission(principal *Principal, action Action) bool
}

// Grant is a typed (resource, action) pair in a principal's effective set.
type Grant struct {
	Resource string `json:"resource"`
	Action   Action `json:"action"`
}

// Gate evaluates whether a principal may perform an action on a resource.
type Gate struct {
	db     *gorm.DB
	policy Policy
}

// NewGate constructs a permission gate backed by the provided database.
func NewGate(db *gorm.DB, policy Policy) (*Gate, error) {
	if db == nil {
		return nil, errors.New("permission gate: db is required")
	}
	if policy == "" {
		policy = PolicyAllow
	}
	if policy != PolicyAllow && policy != PolicyDeny {
		return nil, fmt.Errorf("permission gate: unknown policy %q", policy)
	}
	return &Gate{db: db, policy: policy}, nil
}

// Check returns nil when the principal may perform action on the resource and
// a permission_denied error carrying exactly {action, resource} otherwise.
//
// The effective permission set is computed fresh on every call; it is never
// cached across requests.
func (g *Gate) Check(ctx context.Context, principal *Principal, desc resources.Descriptor, action Action) error {
	if desc == nil {
		return errors.New("permission gate: descriptor is required")
	}

	allowed, err := g.evaluate(ctx, principal, desc, action)
	if err != nil {
		metrics.PermissionChecks.WithLabelValues(string(action), "error").Inc()
		return err
	}

	if !allowed {
		metrics.PermissionChecks.WithLabelValues(string(action), "deny").Inc()
		return denied(action, desc.Name())
	}

	metrics.PermissionChecks.WithLabelValues(string(action), "allow").Inc()
	return nil
}

// Allowed is Check without the error wrapping, for filtering candidate lists.
func (g *Gate) Allowed(ctx context.Context, principal *Principal, desc resources.Descriptor, action Action) bool {
	allowed, err := g.evaluate(ctx, principal, desc, action)
	return err == nil && allowed
}

func (g *Gate) evaluate(ctx context.Context, principal *Principal, desc resources.Descriptor, action Action) (bool, error) {
	// Unknown actions pass through; the operation table in the dispatcher is
	// the authority on which actions exist.
	if !knownAction(action) {
		return true, nil
	}

	// Unauthenticated/service path: outcome is configured, not hard-wired.
	if principal == nil {
		return g.policy == PolicyAllow, nil
	}

	// A descriptor with its own declared policy decides for itself.
	if policy, ok := desc.(ResourcePolicy); ok {
		return policy.HasPermission(principal, action), nil
	}

	effective, err := g.effectiveSet(ctx, principal.TokenID)
	if err != nil {
		return false, err
	}

	if _, ok := effective[Grant{Resource: desc.Name(), Action: action}]; ok {
		return true, nil
	}

	// No matching grant and no descriptor-declared policy: the outcome
	// follows the configured default, same as the unauthenticated path.
	return g.policy == PolicyAllow, nil
}

// EffectivePermissions returns the principal's effective grants, the union of
// the token's direct permissions and those of all its groups, sorted.
func (g *Gate) EffectivePermissions(ctx context.Context, tokenID string) ([]Grant, error) {
	set, err := g.effectiveSet(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	grants := make([]Grant, 0, len(set))
	for grant := range set {
		grants = append(grants, grant)
	}
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].Resource == grants[j].Resource {
			return grants[i].Action < grants[j].Action
		}
		return grants[i].Resource < grants[j].Resource
	})
	return grants, nil
}

func (g *Gate) effectiveSet(ctx context.Context, tokenID string) (map[Grant]struct{}, error) {
	tokenID = strings.TrimSpace(tokenID)
	if tokenID == "" {
		return nil, errors.New("permission gate: token id is required")
	}

	var token models.AccessToken
	if err := g.db.WithContext(ctx).
		Preload("Permissions").
		Preload("Groups.Permissions").
		First(&token, "id = ?", tokenID).Error; err != nil {
		return nil, fmt.Errorf("permission gate: load token: %w", err)
	}

	effective := make(map[Grant]struct{})
	for _, perm := range token.Permissions {
		effective[Grant{Resource: perm.Resource, Action: Action(perm.Action)}] = struct{}{}
	}
	for _, group := range token.Groups {
		for _, perm := range group.Permissions {
			effective[Grant{Resource: perm.Resource, Action: Action(perm.Action)}] = struct{}{}
		}
	}
	return effective, nil
}

func knownAction(action Action) bool {
	switch action {
	case ActionView, ActionAdd, ActionChange, ActionDelete:
		return true
	default:
		return false
	}
}

func denied(action Action, resource string) error {
	return appErrors.ErrPermissionDenied.
		WithMessage(fmt.Sprintf("Permission denied: cannot %s %s", action, resource))
}
