package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

func TestSetRoleGrantsReplacesSet(t *testing.T) {
	store := newMockStore()
	store.roleGrants[[2]int64{1, 100}] = true
	store.roleGrants[[2]int64{1, 101}] = false

	svc := NewService(store, nil, nil)
	err := svc.SetRoleGrants(context.Background(), 1, []GrantInput{
		{PermissionID: 101, Granted: true},
		{PermissionID: 102, Granted: false},
	})
	require.NoError(t, err)

	_, has100 := store.roleGrants[[2]int64{1, 100}]
	assert.False(t, has100, "grant absent from the new set should be detached")
	assert.True(t, store.roleGrants[[2]int64{1, 101}])
	assert.False(t, store.roleGrants[[2]int64{1, 102}])
}

func TestPutOverrideRejectsPastExpiry(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, nil)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	svc := NewService(store, nil, nil)
	svc.WithNow(func() time.Time { return now })

	err := svc.PutOverride(context.Background(), PutOverrideInput{
		UserID: 10, PermissionID: 100, Granted: true, ExpiresAt: &past, GrantedBy: 1,
	})
	require.Error(t, err)
	assert.Empty(t, store.overridesPut)
}

func TestPutOverrideUnknownUser(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil, nil)

	err := svc.PutOverride(context.Background(), PutOverrideInput{
		UserID: 99, PermissionID: 100, Granted: true, GrantedBy: 1,
	})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPutOverrideStoresReasonAndGranter(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, nil)
	svc := NewService(store, nil, nil)

	err := svc.PutOverride(context.Background(), PutOverrideInput{
		UserID: 10, PermissionID: 100, Granted: false,
		Reason: "  incident freeze  ", GrantedBy: 2,
	})
	require.NoError(t, err)
	require.Len(t, store.overridesPut, 1)
	assert.Equal(t, "incident freeze", store.overridesPut[0].Reason)
	assert.EqualValues(t, 2, store.overridesPut[0].GrantedBy)
}

func TestCreateModuleNormalisesKey(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil, nil)

	mod, err := svc.CreateModule(context.Background(), "  Trading ", "")
	require.NoError(t, err)
	assert.Equal(t, "trading", mod.Key)
	assert.Equal(t, "trading", mod.Name)

	_, err = svc.CreateModule(context.Background(), "   ", "x")
	require.Error(t, err)
}

func TestMutationsBumpCache(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, nil)
	cache := newTestCache(t)
	svc := NewService(store, cache, nil)
	ctx := context.Background()

	before, err := cache.Version(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.PutOverride(ctx, PutOverrideInput{UserID: 10, PermissionID: 100, Granted: true, GrantedBy: 1}))
	require.NoError(t, svc.AssignRole(ctx, 10, 1))

	after, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Greater(t, after, before)
}

func TestValidationFailuresAreTyped(t *testing.T) {
	store := newMockStore()
	svc := NewService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateModule(ctx, "   ", "x")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.EnsurePermission(ctx, 1, "", "read", "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateRole(ctx, "   ", "")
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = svc.PutOverride(ctx, PutOverrideInput{})
	assert.ErrorIs(t, err, shared.ErrValidation)

	err = svc.PutOverride(ctx, PutOverrideInput{UserID: 1, PermissionID: 2})
	assert.ErrorIs(t, err, shared.ErrValidation, "missing granter")
}

func TestEffectivePermissionsInactiveUserHasNone(t *testing.T) {
	store := newMockStore()
	store.addUser(1, true, nil)
	store.addUser(2, false, nil)
	store.effective = []Permission{{ID: 7, Key: "partners.view", Action: "read", IsActive: true}}
	svc := NewService(store, nil, nil)

	perms, err := svc.EffectivePermissions(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, perms, 1)

	perms, err = svc.EffectivePermissions(context.Background(), 2)
	require.NoError(t, err)
	assert.Empty(t, perms, "deactivated user lists nothing, matching resolve")
}
