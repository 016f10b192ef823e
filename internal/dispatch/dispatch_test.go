package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/database/testutil"
	"github.com/admingate/admingate/internal/engine"
	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/permissions"
	"github.com/admingate/admingate/internal/resources"
	"github.com/admingate/admingate/internal/services"
	appErrors "github.com/admingate/admingate/pkg/errors"
)

type dispatchFixture struct {
	db         *gorm.DB
	dispatcher *Dispatcher
}

func newFixture(t *testing.T, policy permissions.Policy) *dispatchFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithSeedData())
	require.NoError(t, db.Exec(`CREATE TABLE articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		body TEXT,
		created_at DATETIME,
		updated_at DATETIME
	)`).Error)

	registry := resources.NewRegistry()
	require.NoError(t, registry.Register(&resources.Definition{
		ResourceName: "article",
		Table:        "articles",
		DisplayField: "title",
		Search:       []string{"title"},
		FieldList: []resources.Field{
			{Name: "id", Type: resources.FieldString, ReadOnly: true},
			{Name: "title", Type: resources.FieldString, Required: true},
			{Name: "body", Type: resources.FieldText},
			{Name: "created_at", Type: resources.FieldDateTime, ReadOnly: true},
			{Name: "updated_at", Type: resources.FieldDateTime, ReadOnly: true},
		},
		ActionDefs: []resources.Action{{
			Name:        "explode",
			Description: "Panic on purpose",
			Handler: func(tx *gorm.DB, desc resources.Descriptor, ids []string) (string, error) {
				panic("descriptor bug")
			},
		}},
	}))

	gate, err := permissions.NewGate(db, policy)
	require.NoError(t, err)

	audit, err := services.NewAuditService(db)
	require.NoError(t, err)
	eng, err := engine.New(db, registry, audit)
	require.NoError(t, err)

	dispatcher, err := New(registry, gate, eng)
	require.NoError(t, err)
	return &dispatchFixture{db: db, dispatcher: dispatcher}
}

// newPrincipal persists a token carrying the given grants and returns its
// principal.
func (f *dispatchFixture) newPrincipal(t *testing.T, grants ...permissions.Grant) *permissions.Principal {
	t.Helper()

	token := models.AccessToken{
		Name:       "test-" + uuid.New().String()[:8],
		Identifier: uuid.New().String(),
		SecretHash: "irrelevant",
		Salt:       []byte("0123456789abcdef"),
		IsActive:   true,
	}
	require.NoError(t, f.db.Create(&token).Error)

	for _, grant := range grants {
		perm := models.Permission{
			Resource: grant.Resource,
			Action:   string(grant.Action),
		}
		require.NoError(t, f.db.
			Where("resource = ? AND action = ?", perm.Resource, perm.Action).
			FirstOrCreate(&perm).Error)
		require.NoError(t, f.db.Model(&token).Association("Permissions").Append(&perm))
	}

	return &permissions.Principal{TokenID: token.ID, Name: token.Name}
}

func TestParseCommand(t *testing.T) {
	operation, resource, err := ParseCommand("list_article")
	require.NoError(t, err)
	require.Equal(t, "list", operation)
	require.Equal(t, "article", resource)

	// The first underscore is the delimiter.
	operation, resource, err = ParseCommand("bulk_order_item")
	require.NoError(t, err)
	require.Equal(t, "bulk", operation)
	require.Equal(t, "order_item", resource)

	for _, malformed := range []string{"", "list", "_article", "list_", "  "} {
		_, _, err := ParseCommand(malformed)
		require.True(t, errors.Is(err, appErrors.ErrInvalidInput), malformed)
	}
}

func TestDispatchUnknownResourceAndOperation(t *testing.T) {
	f := newFixture(t, permissions.PolicyAllow)
	ctx := context.Background()

	_, err := f.dispatcher.Dispatch(ctx, nil, "list_ghost", nil)
	require.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = f.dispatcher.Dispatch(ctx, nil, "frobnicate_article", nil)
	require.True(t, errors.Is(err, appErrors.ErrInvalidInput))

	_, err = f.dispatcher.Dispatch(ctx, nil, "nonsense", nil)
	require.True(t, errors.Is(err, appErrors.ErrInvalidInput))
}

func TestDispatchAuthorization(t *testing.T) {
	f := newFixture(t, permissions.PolicyDeny)
	ctx := context.Background()

	viewer := f.newPrincipal(t, permissions.Grant{Resource: "article", Action: permissions.ActionView})

	_, err := f.dispatcher.Dispatch(ctx, viewer, "list_article", nil)
	require.NoError(t, err)

	_, err = f.dispatcher.Dispatch(ctx, viewer, "create_article", map[string]any{
		"data": map[string]any{"title": "Nope"},
	})
	require.True(t, errors.Is(err, appErrors.ErrPermissionDenied))
	// The denial names exactly the verb and the resource.
	message := appErrors.FromError(err).Message
	require.Contains(t, message, "add")
	require.Contains(t, message, "article")

	var count int64
	require.NoError(t, f.db.Table("articles").Count(&count).Error)
	require.Zero(t, count)
}

func TestDispatchCrudRoundTrip(t *testing.T) {
	f := newFixture(t, permissions.PolicyAllow)
	ctx := context.Background()
	principal := f.newPrincipal(t)

	created, err := f.dispatcher.Dispatch(ctx, principal, "create_article", map[string]any{
		"data": map[string]any{"title": "Hello", "body": "World"},
	})
	require.NoError(t, err)
	id := created.(*engine.MutationResult).ID

	listed, err := f.dispatcher.Dispatch(ctx, principal, "list_article", map[string]any{
		"filters": map[string]any{"title__icontains": "hel"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, listed.(*engine.ListResult).Count)

	got, err := f.dispatcher.Dispatch(ctx, principal, "get_article", map[string]any{"id": id})
	require.NoError(t, err)
	require.Equal(t, "Hello", got.(*engine.GetResult).Object["title"])

	_, err = f.dispatcher.Dispatch(ctx, principal, "update_article", map[string]any{
		"id":   id,
		"data": map[string]any{"body": "Updated"},
	})
	require.NoError(t, err)

	history, err := f.dispatcher.Dispatch(ctx, principal, "history_article", map[string]any{"id": id})
	require.NoError(t, err)
	require.Len(t, history.([]models.AuditLog), 2)

	deleted, err := f.dispatcher.Dispatch(ctx, principal, "delete_article", map[string]any{"id": id})
	require.NoError(t, err)
	require.Equal(t, true, deleted.(map[string]any)["deleted"])

	_, err = f.dispatcher.Dispatch(ctx, principal, "get_article", map[string]any{"id": id})
	require.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDispatchArgumentValidation(t *testing.T) {
	f := newFixture(t, permissions.PolicyAllow)
	ctx := context.Background()

	_, err := f.dispatcher.Dispatch(ctx, nil, "get_article", nil)
	require.True(t, errors.Is(err, appErrors.ErrInvalidInput))

	_, err = f.dispatcher.Dispatch(ctx, nil, "create_article", map[string]any{})
	require.True(t, errors.Is(err, appErrors.ErrInvalidInput))

	_, err = f.dispatcher.Dispatch(ctx, nil, "action_article", map[string]any{"ids": []any{"x"}})
	require.True(t, errors.Is(err, appErrors.ErrInvalidInput))
}

func TestDispatchBulkPermissionPerBatch(t *testing.T) {
	f := newFixture(t, permissions.PolicyDeny)
	ctx := context.Background()

	adder := f.newPrincipal(t, permissions.Grant{Resource: "article", Action: permissions.ActionAdd})

	result, err := f.dispatcher.Dispatch(ctx, adder, "bulk_article", map[string]any{
		"operation": "create",
		"items": []any{
			map[string]any{"title": "One"},
			map[string]any{"title": "Two"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.(*engine.BulkResult).SuccessCount)

	// The same principal cannot run a destructive batch.
	_, err = f.dispatcher.Dispatch(ctx, adder, "bulk_article", map[string]any{
		"operation": "delete",
		"items":     []any{"whatever"},
	})
	require.True(t, errors.Is(err, appErrors.ErrPermissionDenied))

	_, err = f.dispatcher.Dispatch(ctx, adder, "bulk_article", map[string]any{
		"operation": "upsert",
		"items":     []any{},
	})
	require.True(t, errors.Is(err, appErrors.ErrInvalidInput))
}

func TestDispatchFindResources(t *testing.T) {
	allow := newFixture(t, permissions.PolicyAllow)
	ctx := context.Background()

	result, err := allow.dispatcher.Dispatch(ctx, nil, "find_resources", nil)
	require.NoError(t, err)
	payload := result.(map[string]any)
	require.Equal(t, 1, payload["count"])

	result, err = allow.dispatcher.Dispatch(ctx, nil, "find_resources", map[string]any{"query": "zzz"})
	require.NoError(t, err)
	require.Equal(t, 0, result.(map[string]any)["count"])

	// Under a deny policy an unauthenticated caller discovers nothing.
	deny := newFixture(t, permissions.PolicyDeny)
	result, err = deny.dispatcher.Dispatch(ctx, nil, "find_resources", nil)
	require.NoError(t, err)
	require.Equal(t, 0, result.(map[string]any)["count"])

	// A view grant makes the resource discoverable again.
	viewer := deny.newPrincipal(t, permissions.Grant{Resource: "article", Action: permissions.ActionView})
	result, err = deny.dispatcher.Dispatch(ctx, viewer, "find_resources", nil)
	require.NoError(t, err)
	require.Equal(t, 1, result.(map[string]any)["count"])
}

func TestDispatchDescribe(t *testing.T) {
	f := newFixture(t, permissions.PolicyAllow)

	result, err := f.dispatcher.Dispatch(context.Background(), nil, "describe_article", nil)
	require.NoError(t, err)

	schema := result.(map[string]any)
	require.Equal(t, "article", schema["resource"])
	require.Equal(t, "id", schema["primary_key"])

	fields := schema["fields"].([]map[string]any)
	require.Len(t, fields, 5)

	actions := schema["actions"].([]map[string]string)
	require.Equal(t, "delete_selected", actions[0]["name"])
	require.Equal(t, "explode", actions[1]["name"])
}

func TestDispatchPanicRecovery(t *testing.T) {
	f := newFixture(t, permissions.PolicyAllow)
	ctx := context.Background()
	principal := f.newPrincipal(t)

	created, err := f.dispatcher.Dispatch(ctx, principal, "create_article", map[string]any{
		"data": map[string]any{"title": "Boom"},
	})
	require.NoError(t, err)
	id := created.(*engine.MutationResult).ID

	_, err = f.dispatcher.Dispatch(ctx, principal, "action_article", map[string]any{
		"action": "explode",
		"ids":    []any{id},
	})
	require.True(t, errors.Is(err, appErrors.ErrInternalServer))

	// The host survives and keeps serving.
	_, err = f.dispatcher.Dispatch(ctx, principal, "list_article", nil)
	require.NoError(t, err)
}

func TestCommandsEnumeration(t *testing.T) {
	f := newFixture(t, permissions.PolicyAllow)

	specs := f.dispatcher.Commands()
	// find_resources plus the standard set for one resource.
	require.Len(t, specs, 1+len(standardOperations))
	require.Equal(t, CommandFindResources, specs[0].Name)

	byName := map[string]CommandSpec{}
	for _, spec := range specs {
		byName[spec.Name] = spec
	}

	createSpec, ok := byName["create_article"]
	require.True(t, ok)
	data := createSpec.Parameters["properties"].(map[string]any)["data"].(map[string]any)
	require.Equal(t, []string{"title"}, data["required"])

	getSpec := byName["get_article"]
	require.Equal(t, []string{"id"}, getSpec.Parameters["required"])
}

func TestDispatchMetricLabelsStayBounded(t *testing.T) {
	f := newFixture(t, permissions.PolicyAllow)
	ctx := context.Background()

	// Neither an unregistered resource nor an unknown operation may leak the
	// raw caller string into a metric label.
	rawResource := "zz9-raw-caller-input"
	_, err := f.dispatcher.Dispatch(ctx, nil, "list_"+rawResource, nil)
	require.True(t, errors.Is(err, appErrors.ErrNotFound))

	rawOperation := "frobnicate"
	_, err = f.dispatcher.Dispatch(ctx, nil, rawOperation+"_article", nil)
	require.True(t, errors.Is(err, appErrors.ErrInvalidInput))

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				require.NotEqual(t, rawResource, label.GetValue())
				require.NotEqual(t, rawOperation, label.GetValue())
			}
		}
	}
}
