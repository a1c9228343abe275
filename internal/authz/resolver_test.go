package authz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	users       map[int64]UserAccess
	permissions map[string]Permission
	modules     map[int64]Module
	overrides   map[[2]int64]*Override
	roleGrants  map[[2]int64]bool

	modulesCreated []Module
	grantsSet      map[[2]int64]bool
	grantsDeleted  [][2]int64
	overridesPut   []Override
	effective      []Permission

	userAccessErr error
}

func newMockStore() *mockStore {
	return &mockStore{
		users:       make(map[int64]UserAccess),
		permissions: make(map[string]Permission),
		modules:     make(map[int64]Module),
		overrides:   make(map[[2]int64]*Override),
		roleGrants:  make(map[[2]int64]bool),
		grantsSet:   make(map[[2]int64]bool),
	}
}

func permKey(key, action string) string { return key + "|" + action }

func (m *mockStore) addUser(id int64, active bool, roleID *int64) {
	m.users[id] = UserAccess{ID: id, IsActive: active, RoleID: roleID}
}

func (m *mockStore) addPermission(id, moduleID int64, key, action string, permActive, modActive bool) {
	m.permissions[permKey(key, action)] = Permission{ID: id, ModuleID: moduleID, Key: key, Action: action, IsActive: permActive}
	m.modules[moduleID] = Module{ID: moduleID, Key: "mod", IsActive: modActive}
}

func (m *mockStore) UserAccess(ctx context.Context, userID int64) (UserAccess, error) {
	if m.userAccessErr != nil {
		return UserAccess{}, m.userAccessErr
	}
	ua, ok := m.users[userID]
	if !ok {
		return UserAccess{}, ErrNotFound
	}
	return ua, nil
}

func (m *mockStore) PermissionByKey(ctx context.Context, key, action string) (Permission, Module, error) {
	p, ok := m.permissions[permKey(key, action)]
	if !ok {
		return Permission{}, Module{}, ErrNotFound
	}
	return p, m.modules[p.ModuleID], nil
}

func (m *mockStore) Override(ctx context.Context, userID, permissionID int64) (*Override, error) {
	return m.overrides[[2]int64{userID, permissionID}], nil
}

func (m *mockStore) RoleGrant(ctx context.Context, roleID, permissionID int64) (*bool, error) {
	granted, ok := m.roleGrants[[2]int64{roleID, permissionID}]
	if !ok {
		return nil, nil
	}
	return &granted, nil
}

func (m *mockStore) CreateModule(ctx context.Context, key, name string) (Module, error) {
	mod := Module{ID: int64(len(m.modulesCreated) + 1), Key: key, Name: name, IsActive: true}
	m.modulesCreated = append(m.modulesCreated, mod)
	return mod, nil
}

func (m *mockStore) SetModuleActive(ctx context.Context, id int64, active bool) error {
	mod, ok := m.modules[id]
	if !ok {
		return ErrNotFound
	}
	mod.IsActive = active
	m.modules[id] = mod
	return nil
}

func (m *mockStore) ListModules(ctx context.Context) ([]Module, error) { return nil, nil }

func (m *mockStore) EnsurePermission(ctx context.Context, moduleID int64, key, action, description string) (Permission, error) {
	p := Permission{ID: int64(len(m.permissions) + 1), ModuleID: moduleID, Key: key, Action: action, Description: description, IsActive: true}
	m.permissions[permKey(key, action)] = p
	return p, nil
}

func (m *mockStore) ListPermissions(ctx context.Context, moduleID int64) ([]Permission, error) {
	return nil, nil
}

func (m *mockStore) CreateRole(ctx context.Context, name, description string) (Role, error) {
	return Role{ID: 1, Name: name, Description: description}, nil
}

func (m *mockStore) GetRole(ctx context.Context, id int64) (Role, error) {
	return Role{ID: id, Name: "role"}, nil
}

func (m *mockStore) ListRoleGrants(ctx context.Context, roleID int64) ([]RoleGrant, error) {
	var grants []RoleGrant
	for k, granted := range m.roleGrants {
		if k[0] == roleID {
			grants = append(grants, RoleGrant{RoleID: k[0], PermissionID: k[1], Granted: granted})
		}
	}
	return grants, nil
}

func (m *mockStore) UpsertRoleGrant(ctx context.Context, roleID, permissionID int64, granted bool) error {
	m.roleGrants[[2]int64{roleID, permissionID}] = granted
	m.grantsSet[[2]int64{roleID, permissionID}] = granted
	return nil
}

func (m *mockStore) DeleteRoleGrant(ctx context.Context, roleID, permissionID int64) error {
	delete(m.roleGrants, [2]int64{roleID, permissionID})
	m.grantsDeleted = append(m.grantsDeleted, [2]int64{roleID, permissionID})
	return nil
}

func (m *mockStore) AssignRole(ctx context.Context, userID, roleID int64) error {
	ua, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	ua.RoleID = &roleID
	m.users[userID] = ua
	return nil
}

func (m *mockStore) PutOverride(ctx context.Context, o Override) error {
	m.overrides[[2]int64{o.UserID, o.PermissionID}] = &o
	m.overridesPut = append(m.overridesPut, o)
	return nil
}

func (m *mockStore) DeleteOverride(ctx context.Context, userID, permissionID int64) error {
	key := [2]int64{userID, permissionID}
	if _, ok := m.overrides[key]; !ok {
		return ErrNotFound
	}
	delete(m.overrides, key)
	return nil
}

func (m *mockStore) EffectivePermissions(ctx context.Context, userID int64, at time.Time) ([]Permission, error) {
	return m.effective, nil
}

func ptrInt64(v int64) *int64 { return &v }

func TestResolveOverrideBeatsRoleGrant(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, ptrInt64(1))
	store.addPermission(100, 1, "reports.export", "run", true, true)
	store.roleGrants[[2]int64{1, 100}] = false
	store.overrides[[2]int64{10, 100}] = &Override{UserID: 10, PermissionID: 100, Granted: true}

	resolver := NewResolver(store, nil, nil)
	decision, err := resolver.Resolve(context.Background(), 10, "reports.export", "run")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, SourceOverride, decision.Source)
}

func TestResolveOverrideDenyBeatsRoleAllow(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, ptrInt64(1))
	store.addPermission(100, 1, "partners.amend", "write", true, true)
	store.roleGrants[[2]int64{1, 100}] = true
	store.overrides[[2]int64{10, 100}] = &Override{UserID: 10, PermissionID: 100, Granted: false}

	resolver := NewResolver(store, nil, nil)
	decision, err := resolver.Resolve(context.Background(), 10, "partners.amend", "write")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, SourceOverride, decision.Source)
}

func TestResolveExpiredOverrideFallsBackToRole(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)

	store := newMockStore()
	store.addUser(10, true, ptrInt64(1))
	store.addPermission(100, 1, "reports.export", "run", true, true)
	store.roleGrants[[2]int64{1, 100}] = true
	store.overrides[[2]int64{10, 100}] = &Override{UserID: 10, PermissionID: 100, Granted: false, ExpiresAt: &expired}

	resolver := NewResolver(store, nil, nil)
	resolver.WithNow(func() time.Time { return now })

	decision, err := resolver.Resolve(context.Background(), 10, "reports.export", "run")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, SourceRole, decision.Source)
}

func TestResolveFutureExpiryStillCounts(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)

	store := newMockStore()
	store.addUser(10, true, ptrInt64(1))
	store.addPermission(100, 1, "reports.export", "run", true, true)
	store.roleGrants[[2]int64{1, 100}] = false
	store.overrides[[2]int64{10, 100}] = &Override{UserID: 10, PermissionID: 100, Granted: true, ExpiresAt: &future}

	resolver := NewResolver(store, nil, nil)
	resolver.WithNow(func() time.Time { return now })

	decision, err := resolver.Resolve(context.Background(), 10, "reports.export", "run")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, SourceOverride, decision.Source)
}

func TestResolveRoleGrantApplies(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, ptrInt64(1))
	store.addPermission(100, 1, "partners.view", "read", true, true)
	store.roleGrants[[2]int64{1, 100}] = true

	resolver := NewResolver(store, nil, nil)
	decision, err := resolver.Resolve(context.Background(), 10, "partners.view", "read")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
	assert.Equal(t, SourceRole, decision.Source)
}

func TestResolveDefaultDeny(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, ptrInt64(1))
	store.addPermission(100, 1, "partners.delete", "write", true, true)

	resolver := NewResolver(store, nil, nil)
	decision, err := resolver.Resolve(context.Background(), 10, "partners.delete", "write")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, SourceDefault, decision.Source)
}

func TestResolveNoRoleDefaultDeny(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, nil)
	store.addPermission(100, 1, "partners.view", "read", true, true)
	store.roleGrants[[2]int64{1, 100}] = true

	resolver := NewResolver(store, nil, nil)
	decision, err := resolver.Resolve(context.Background(), 10, "partners.view", "read")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestResolveInactiveModuleFailsClosed(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, ptrInt64(1))
	store.addPermission(100, 1, "partners.view", "read", true, false)
	store.roleGrants[[2]int64{1, 100}] = true
	store.overrides[[2]int64{10, 100}] = &Override{UserID: 10, PermissionID: 100, Granted: true}

	resolver := NewResolver(store, nil, nil)
	decision, err := resolver.Resolve(context.Background(), 10, "partners.view", "read")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, SourceInactive, decision.Source)
}

func TestResolveInactivePermissionFailsClosed(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, ptrInt64(1))
	store.addPermission(100, 1, "partners.view", "read", false, true)
	store.roleGrants[[2]int64{1, 100}] = true

	resolver := NewResolver(store, nil, nil)
	decision, err := resolver.Resolve(context.Background(), 10, "partners.view", "read")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, SourceInactive, decision.Source)
}

func TestResolveInactiveUserFailsClosed(t *testing.T) {
	store := newMockStore()
	store.addUser(10, false, ptrInt64(1))
	store.addPermission(100, 1, "partners.view", "read", true, true)
	store.roleGrants[[2]int64{1, 100}] = true

	resolver := NewResolver(store, nil, nil)
	decision, err := resolver.Resolve(context.Background(), 10, "partners.view", "read")
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
}

func TestResolveUnknownUser(t *testing.T) {
	store := newMockStore()
	store.addPermission(100, 1, "partners.view", "read", true, true)

	resolver := NewResolver(store, nil, nil)
	_, err := resolver.Resolve(context.Background(), 99, "partners.view", "read")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveUnknownPermission(t *testing.T) {
	store := newMockStore()
	store.addUser(10, true, nil)

	resolver := NewResolver(store, nil, nil)
	_, err := resolver.Resolve(context.Background(), 10, "no.such.permission", "read")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestResolveViewerExportScenario(t *testing.T) {
	// Role "Viewer" denies reports.export/run; a live override grants it.
	store := newMockStore()
	store.addUser(7, true, ptrInt64(3))
	store.addPermission(200, 2, "reports.export", "run", true, true)
	store.roleGrants[[2]int64{3, 200}] = false
	store.overrides[[2]int64{7, 200}] = &Override{UserID: 7, PermissionID: 200, Granted: true}

	resolver := NewResolver(store, nil, nil)
	decision, err := resolver.Resolve(context.Background(), 7, "reports.export", "run")
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
