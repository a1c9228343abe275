package authz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// Store defines the persistence surface used by the management service.
type Store interface {
	ResolverStore

	CreateModule(ctx context.Context, key, name string) (Module, error)
	SetModuleActive(ctx context.Context, id int64, active bool) error
	ListModules(ctx context.Context) ([]Module, error)
	EnsurePermission(ctx context.Context, moduleID int64, key, action, description string) (Permission, error)
	ListPermissions(ctx context.Context, moduleID int64) ([]Permission, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoleGrants(ctx context.Context, roleID int64) ([]RoleGrant, error)
	UpsertRoleGrant(ctx context.Context, roleID, permissionID int64, granted bool) error
	DeleteRoleGrant(ctx context.Context, roleID, permissionID int64) error
	AssignRole(ctx context.Context, userID, roleID int64) error
	PutOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, userID, permissionID int64) error
	EffectivePermissions(ctx context.Context, userID int64, at time.Time) ([]Permission, error)
}

// Service orchestrates administration of modules, permissions, roles, and
// overrides. Every mutation bumps the decision cache so resolvers never
// serve stale grants.
type Service struct {
	store  Store
	cache  *DecisionCache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(store Store, cache *DecisionCache, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateModule registers a new capability area.
func (s *Service) CreateModule(ctx context.Context, key, name string) (Module, error) {
	key = strings.TrimSpace(strings.ToLower(key))
	if key == "" {
		return Module{}, fmt.Errorf("authz: module key required: %w", shared.ErrValidation)
	}
	if strings.TrimSpace(name) == "" {
		name = key
	}
	mod, err := s.store.CreateModule(ctx, key, strings.TrimSpace(name))
	if err != nil {
		return Module{}, err
	}
	s.bump(ctx)
	return mod, nil
}

// DeactivateModule soft-deletes a module. Resolution against its
// permissions fails closed afterwards.
func (s *Service) DeactivateModule(ctx context.Context, id int64) error {
	if err := s.store.SetModuleActive(ctx, id, false); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// ReactivateModule reverses a soft delete.
func (s *Service) ReactivateModule(ctx context.Context, id int64) error {
	if err := s.store.SetModuleActive(ctx, id, true); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// ListModules returns all modules.
func (s *Service) ListModules(ctx context.Context) ([]Module, error) {
	return s.store.ListModules(ctx)
}

// EnsurePermission upserts a permission under a module.
func (s *Service) EnsurePermission(ctx context.Context, moduleID int64, key, action, description string) (Permission, error) {
	key = strings.TrimSpace(strings.ToLower(key))
	action = strings.TrimSpace(strings.ToLower(action))
	if key == "" || action == "" {
		return Permission{}, fmt.Errorf("authz: permission key and action required: %w", shared.ErrValidation)
	}
	perm, err := s.store.EnsurePermission(ctx, moduleID, key, action, strings.TrimSpace(description))
	if err != nil {
		return Permission{}, err
	}
	s.bump(ctx)
	return perm, nil
}

// ListPermissions returns the permissions of a module.
func (s *Service) ListPermissions(ctx context.Context, moduleID int64) ([]Permission, error) {
	return s.store.ListPermissions(ctx, moduleID)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("authz: role name required: %w", shared.ErrValidation)
	}
	return s.store.CreateRole(ctx, name, strings.TrimSpace(description))
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.store.GetRole(ctx, id)
}

// GrantInput pairs a permission with its granted flag for SetRoleGrants.
type GrantInput struct {
	PermissionID int64 `json:"permission_id"`
	Granted      bool  `json:"granted"`
}

// SetRoleGrants replaces the grant set of a role. Existing links absent
// from the new set are detached; the rest are upserted with their flags.
func (s *Service) SetRoleGrants(ctx context.Context, roleID int64, grants []GrantInput) error {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	existing, err := s.store.ListRoleGrants(ctx, roleID)
	if err != nil {
		return err
	}
	keep := make(map[int64]struct{}, len(grants))
	for _, g := range grants {
		keep[g.PermissionID] = struct{}{}
		if err := s.store.UpsertRoleGrant(ctx, roleID, g.PermissionID, g.Granted); err != nil {
			return err
		}
	}
	for _, g := range existing {
		if _, ok := keep[g.PermissionID]; !ok {
			if err := s.store.DeleteRoleGrant(ctx, roleID, g.PermissionID); err != nil {
				return err
			}
		}
	}
	s.bump(ctx)
	return nil
}

// AssignRole sets the role of a user.
func (s *Service) AssignRole(ctx context.Context, userID, roleID int64) error {
	if _, err := s.store.GetRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.store.AssignRole(ctx, userID, roleID); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// PutOverrideInput carries an override upsert.
type PutOverrideInput struct {
	UserID       int64
	PermissionID int64
	Granted      bool
	ExpiresAt    *time.Time
	Reason       string
	GrantedBy    int64
}

// PutOverride upserts a user-specific override. An expiry in the past is
// rejected since it would be indistinguishable from no override at all.
func (s *Service) PutOverride(ctx context.Context, in PutOverrideInput) error {
	if in.UserID == 0 || in.PermissionID == 0 {
		return fmt.Errorf("authz: override user and permission required: %w", shared.ErrValidation)
	}
	if in.GrantedBy == 0 {
		return fmt.Errorf("authz: override granter required: %w", shared.ErrValidation)
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return fmt.Errorf("authz: override expiry must be in the future: %w", shared.ErrValidation)
	}
	if _, err := s.store.UserAccess(ctx, in.UserID); err != nil {
		return err
	}
	err := s.store.PutOverride(ctx, Override{
		UserID:       in.UserID,
		PermissionID: in.PermissionID,
		Granted:      in.Granted,
		ExpiresAt:    in.ExpiresAt,
		Reason:       strings.TrimSpace(in.Reason),
		GrantedBy:    in.GrantedBy,
	})
	if err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// DeleteOverride removes a user-specific override.
func (s *Service) DeleteOverride(ctx context.Context, userID, permissionID int64) error {
	if err := s.store.DeleteOverride(ctx, userID, permissionID); err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// EffectivePermissions returns the permissions currently allowed for a
// user. A deactivated user has none, matching the resolver failing closed.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]Permission, error) {
	access, err := s.store.UserAccess(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !access.IsActive {
		return []Permission{}, nil
	}
	return s.store.EffectivePermissions(ctx, userID, s.now())
}

func (s *Service) bump(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("authz cache bump", slog.Any("error", err))
	}
}
