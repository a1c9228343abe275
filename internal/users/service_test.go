package users

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mu     sync.Mutex
	users  map[int64]*User
	nextID int64

	txErr error
}

func newMockStore() *mockStore {
	return &mockStore{users: make(map[int64]*User), nextID: 1}
}

func (m *mockStore) addUser(u User) *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u.ID == 0 {
		u.ID = m.nextID
	}
	if u.ID >= m.nextID {
		m.nextID = u.ID + 1
	}
	m.users[u.ID] = &u
	return m.users[u.ID]
}

func (m *mockStore) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	// The real store serializes per parent with a row lock; the mock
	// serializes everything, which is strictly stronger.
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, &mockTxStore{store: m})
}

func (m *mockStore) GetUser(ctx context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (m *mockStore) ListSubUsers(ctx context.Context, parentID int64) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs []User
	for _, u := range m.users {
		if u.ParentID != nil && *u.ParentID == parentID {
			subs = append(subs, *u)
		}
	}
	return subs, nil
}

func (m *mockStore) SetActive(ctx context.Context, id int64, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

type mockTxStore struct {
	store *mockStore
}

func (t *mockTxStore) LockParent(ctx context.Context, parentID int64) (User, error) {
	u, ok := t.store.users[parentID]
	if !ok {
		return User{}, ErrNotFound
	}
	return *u, nil
}

func (t *mockTxStore) CountActiveSubUsers(ctx context.Context, parentID int64) (int, error) {
	count := 0
	for _, u := range t.store.users {
		if u.ParentID != nil && *u.ParentID == parentID && u.IsActive {
			count++
		}
	}
	return count, nil
}

func (t *mockTxStore) InsertSubUser(ctx context.Context, parentID int64, u User) (User, error) {
	for _, existing := range t.store.users {
		if existing.Email == u.Email {
			return User{}, ErrDuplicateEmail
		}
	}
	u.ID = t.store.nextID
	t.store.nextID++
	u.ParentID = &parentID
	u.IsActive = true
	t.store.users[u.ID] = &u
	return u, nil
}

func (t *mockTxStore) SetActive(ctx context.Context, id int64, active bool) error {
	u, ok := t.store.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	return nil
}

func activeParent(store *mockStore) *User {
	return store.addUser(User{ID: 1, Email: "parent@acme.test", Name: "Parent", IsActive: true})
}

func TestCreateSubUserInheritsParentScope(t *testing.T) {
	store := newMockStore()
	roleID := int64(5)
	parent := activeParent(store)
	parent.RoleID = &roleID

	svc := NewService(store, nil)
	created, err := svc.CreateSubUser(context.Background(), parent.ID, SubUserAttrs{
		Email: "Sub@Acme.Test", Name: "Sub One",
	})
	require.NoError(t, err)
	require.NotNil(t, created.RoleID)
	assert.EqualValues(t, 5, *created.RoleID)
	require.NotNil(t, created.ParentID)
	assert.Equal(t, parent.ID, *created.ParentID)
	assert.Equal(t, "sub@acme.test", created.Email)
	assert.True(t, created.IsActive)
}

func TestCreateSubUserCapEnforced(t *testing.T) {
	store := newMockStore()
	parent := activeParent(store)
	svc := NewService(store, nil)
	ctx := context.Background()

	_, err := svc.CreateSubUser(ctx, parent.ID, SubUserAttrs{Email: "a@acme.test", Name: "A"})
	require.NoError(t, err)
	second, err := svc.CreateSubUser(ctx, parent.ID, SubUserAttrs{Email: "b@acme.test", Name: "B"})
	require.NoError(t, err)

	_, err = svc.CreateSubUser(ctx, parent.ID, SubUserAttrs{Email: "c@acme.test", Name: "C"})
	require.ErrorIs(t, err, ErrSubUserLimit)

	// Deactivating one frees a slot.
	require.NoError(t, svc.DeactivateSubUser(ctx, second.ID))
	_, err = svc.CreateSubUser(ctx, parent.ID, SubUserAttrs{Email: "c@acme.test", Name: "C"})
	require.NoError(t, err)
}

func TestCreateSubUserConcurrentRequestsRespectCap(t *testing.T) {
	store := newMockStore()
	parent := activeParent(store)
	svc := NewService(store, nil)

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateSubUser(context.Background(), parent.ID, SubUserAttrs{
				Email: "sub" + string(rune('a'+i)) + "@acme.test", Name: "Sub",
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		if err == nil {
			created++
		} else {
			require.ErrorIs(t, err, ErrSubUserLimit)
		}
	}
	assert.Equal(t, MaxActiveSubUsers, created)
}

func TestCreateSubUserNoNesting(t *testing.T) {
	store := newMockStore()
	parent := activeParent(store)
	svc := NewService(store, nil)

	sub, err := svc.CreateSubUser(context.Background(), parent.ID, SubUserAttrs{Email: "a@acme.test", Name: "A"})
	require.NoError(t, err)

	_, err = svc.CreateSubUser(context.Background(), sub.ID, SubUserAttrs{Email: "b@acme.test", Name: "B"})
	require.ErrorIs(t, err, ErrNestedSubUser)
}

func TestCreateSubUserInactiveParent(t *testing.T) {
	store := newMockStore()
	store.addUser(User{ID: 1, Email: "parent@acme.test", Name: "Parent", IsActive: false})
	svc := NewService(store, nil)

	_, err := svc.CreateSubUser(context.Background(), 1, SubUserAttrs{Email: "a@acme.test", Name: "A"})
	require.ErrorIs(t, err, ErrParentInactive)
}

func TestCreateSubUserUnknownParent(t *testing.T) {
	svc := NewService(newMockStore(), nil)
	_, err := svc.CreateSubUser(context.Background(), 99, SubUserAttrs{Email: "a@acme.test", Name: "A"})
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateSubUserValidation(t *testing.T) {
	store := newMockStore()
	parent := activeParent(store)
	svc := NewService(store, nil)

	_, err := svc.CreateSubUser(context.Background(), parent.ID, SubUserAttrs{Email: "not-an-email", Name: "A"})
	require.Error(t, err)

	_, err = svc.CreateSubUser(context.Background(), parent.ID, SubUserAttrs{Email: "a@acme.test", Name: "  "})
	require.Error(t, err)
}

func TestDeactivateRequiresSubUser(t *testing.T) {
	store := newMockStore()
	parent := activeParent(store)
	svc := NewService(store, nil)

	err := svc.DeactivateSubUser(context.Background(), parent.ID)
	require.ErrorIs(t, err, ErrNotSubUser)
}

func TestReactivateRespectsCap(t *testing.T) {
	store := newMockStore()
	parent := activeParent(store)
	svc := NewService(store, nil)
	ctx := context.Background()

	first, err := svc.CreateSubUser(ctx, parent.ID, SubUserAttrs{Email: "a@acme.test", Name: "A"})
	require.NoError(t, err)
	_, err = svc.CreateSubUser(ctx, parent.ID, SubUserAttrs{Email: "b@acme.test", Name: "B"})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateSubUser(ctx, first.ID))
	_, err = svc.CreateSubUser(ctx, parent.ID, SubUserAttrs{Email: "c@acme.test", Name: "C"})
	require.NoError(t, err)

	err = svc.ReactivateSubUser(ctx, first.ID)
	require.ErrorIs(t, err, ErrSubUserLimit)
}
