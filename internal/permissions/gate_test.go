package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/admingate/admingate/internal/database/testutil"
	"github.com/admingate/admingate/internal/models"
	"github.com/admingate/admingate/internal/resources"
	appErrors "github.com/admingate/admingate/pkg/errors"
)

func articleDescriptor() resources.Descriptor {
	return &resources.Definition{
		ResourceName: "article",
		Table:        "articles",
		FieldList: []resources.Field{
			{Name: "id", Type: resources.FieldString, ReadOnly: true},
			{Name: "title", Type: resources.FieldString, Required: true},
		},
	}
}

func seedToken(t *testing.T, db *gorm.DB, grants []models.Permission, groups []models.Group) *models.AccessToken {
	t.Helper()

	token := &models.AccessToken{
		Name:        "test token",
		Identifier:  "ident-" + t.Name(),
		SecretHash:  "hash",
		Salt:        []byte("0123456789abcdef"),
		IsActive:    true,
		Permissions: grants,
		Groups:      groups,
	}
	require.NoError(t, db.Create(token).Error)
	return token
}

func TestGateDirectGrant(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	gate, err := NewGate(db, PolicyDeny)
	require.NoError(t, err)

	token := seedToken(t, db, []models.Permission{
		{Resource: "article", Action: "view", BaseModel: models.BaseModel{ID: "article:view"}},
	}, nil)

	principal := &Principal{TokenID: token.ID, Name: token.Name}
	ctx := context.Background()

	require.NoError(t, gate.Check(ctx, principal, articleDescriptor(), ActionView))

	err = gate.Check(ctx, principal, articleDescriptor(), ActionDelete)
	require.ErrorIs(t, err, appErrors.ErrPermissionDenied)
	require.Contains(t, err.Error(), "delete")
	require.Contains(t, err.Error(), "article")
}

func TestGateGroupGrantSuffices(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	gate, err := NewGate(db, PolicyDeny)
	require.NoError(t, err)

	group := models.Group{
		Name: "editors",
		Permissions: []models.Permission{
			{Resource: "article", Action: "change", BaseModel: models.BaseModel{ID: "article:change"}},
		},
	}
	token := seedToken(t, db, nil, []models.Group{group})

	principal := &Principal{TokenID: token.ID}
	require.NoError(t, gate.Check(context.Background(), principal, articleDescriptor(), ActionChange))
}

func TestGateEffectiveSetIsUnionAndUncached(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	gate, err := NewGate(db, PolicyDeny)
	require.NoError(t, err)

	group := models.Group{
		Name: "viewers",
		Permissions: []models.Permission{
			{Resource: "article", Action: "view", BaseModel: models.BaseModel{ID: "article:view"}},
		},
	}
	token := seedToken(t, db, []models.Permission{
		{Resource: "article", Action: "add", BaseModel: models.BaseModel{ID: "article:add"}},
	}, []models.Group{group})

	ctx := context.Background()
	grants, err := gate.EffectivePermissions(ctx, token.ID)
	require.NoError(t, err)
	require.Equal(t, []Grant{
		{Resource: "article", Action: ActionAdd},
		{Resource: "article", Action: ActionView},
	}, grants)

	principal := &Principal{TokenID: token.ID}
	require.ErrorIs(t, gate.Check(ctx, principal, articleDescriptor(), ActionDelete), appErrors.ErrPermissionDenied)

	// Grants are read fresh on every check; a new row is visible immediately.
	var perm models.Permission
	perm.ID = "article:delete"
	perm.Resource = "article"
	perm.Action = "delete"
	require.NoError(t, db.Create(&perm).Error)
	require.NoError(t, db.Model(&models.AccessToken{BaseModel: models.BaseModel{ID: token.ID}}).
		Association("Permissions").Append(&perm))

	require.NoError(t, gate.Check(ctx, principal, articleDescriptor(), ActionDelete))
}

func TestGateGrantlessPrincipalFollowsPolicy(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()

	token := seedToken(t, db, nil, nil)
	principal := &Principal{TokenID: token.ID}

	// Descriptors without a declared policy fall back to the configured
	// default when no grant matches; authentication alone is not a denial.
	allowGate, err := NewGate(db, PolicyAllow)
	require.NoError(t, err)
	require.NoError(t, allowGate.Check(ctx, principal, articleDescriptor(), ActionAdd))
	require.NoError(t, allowGate.Check(ctx, principal, articleDescriptor(), ActionDelete))

	denyGate, err := NewGate(db, PolicyDeny)
	require.NoError(t, err)
	require.ErrorIs(t, denyGate.Check(ctx, principal, articleDescriptor(), ActionAdd), appErrors.ErrPermissionDenied)
}

func TestGateDefaultPolicyForMissingPrincipal(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	ctx := context.Background()

	allowGate, err := NewGate(db, PolicyAllow)
	require.NoError(t, err)
	require.NoError(t, allowGate.Check(ctx, nil, articleDescriptor(), ActionDelete))

	denyGate, err := NewGate(db, PolicyDeny)
	require.NoError(t, err)
	require.ErrorIs(t, denyGate.Check(ctx, nil, articleDescriptor(), ActionDelete), appErrors.ErrPermissionDenied)
}

func TestGateUnknownActionDefaultsToAllow(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	gate, err := NewGate(db, PolicyDeny)
	require.NoError(t, err)

	token := seedToken(t, db, nil, nil)
	principal := &Principal{TokenID: token.ID}

	require.NoError(t, gate.Check(context.Background(), principal, articleDescriptor(), Action("frobnicate")))
}

type openPolicyDescriptor struct {
	resources.Definition
	allow bool
}

func (d *openPolicyDescriptor) HasPermission(_ *Principal, _ Action) bool { return d.allow }

func TestGateDescriptorPolicyWins(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	gate, err := NewGate(db, PolicyAllow)
	require.NoError(t, err)

	token := seedToken(t, db, nil, nil)
	principal := &Principal{TokenID: token.ID}
	ctx := context.Background()

	open := &openPolicyDescriptor{allow: true}
	open.ResourceName = "article"
	open.Table = "articles"
	require.NoError(t, gate.Check(ctx, principal, open, ActionDelete))

	closed := &openPolicyDescriptor{allow: false}
	closed.ResourceName = "article"
	closed.Table = "articles"
	require.ErrorIs(t, gate.Check(ctx, principal, closed, ActionView), appErrors.ErrPermissionDenied)
}

func TestNewGateValidation(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	_, err := NewGate(nil, PolicyAllow)
	require.Error(t, err)

	_, err = NewGate(db, Policy("maybe"))
	require.Error(t, err)

	gate, err := NewGate(db, "")
	require.NoError(t, err)
	require.Equal(t, PolicyAllow, gate.policy)
}
