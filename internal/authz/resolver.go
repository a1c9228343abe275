package authz

import (
	"context"
	"log/slog"
	"time"
)

// ResolverStore defines the reads the resolver performs.
type ResolverStore interface {
	UserAccess(ctx context.Context, userID int64) (UserAccess, error)
	PermissionByKey(ctx context.Context, key, action string) (Permission, Module, error)
	Override(ctx context.Context, userID, permissionID int64) (*Override, error)
	RoleGrant(ctx context.Context, roleID, permissionID int64) (*bool, error)
}

// Resolver computes effective permission decisions. It is a pure read path
// and safe to call per request; a DecisionCache may be attached to absorb
// repeated lookups, and correctness holds with the cache nil.
type Resolver struct {
	store  ResolverStore
	cache  *DecisionCache
	logger *slog.Logger
	now    func() time.Time
}

// NewResolver constructs a Resolver. cache may be nil.
func NewResolver(store ResolverStore, cache *DecisionCache, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (r *Resolver) WithNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Resolve returns the effective decision for (userID, key, action).
//
// Precedence: a non-expired user override always wins; otherwise the role
// grant applies; absent both, the default is deny. Inactive modules,
// permissions, and users deny regardless of grants. Unknown users and
// unknown permission keys fail with ErrNotFound, never a silent allow.
func (r *Resolver) Resolve(ctx context.Context, userID int64, key, action string) (Decision, error) {
	if r.cache == nil {
		return r.resolve(ctx, userID, key, action)
	}
	return r.cache.Fetch(ctx, userID, key, action, func(ctx context.Context) (Decision, error) {
		return r.resolve(ctx, userID, key, action)
	})
}

func (r *Resolver) resolve(ctx context.Context, userID int64, key, action string) (Decision, error) {
	perm, mod, err := r.store.PermissionByKey(ctx, key, action)
	if err != nil {
		return Decision{}, err
	}

	user, err := r.store.UserAccess(ctx, userID)
	if err != nil {
		return Decision{}, err
	}

	if !mod.IsActive || !perm.IsActive || !user.IsActive {
		return Decision{Allowed: false, Source: SourceInactive}, nil
	}

	override, err := r.store.Override(ctx, userID, perm.ID)
	if err != nil {
		return Decision{}, err
	}
	if override != nil && !override.Expired(r.now()) {
		return Decision{Allowed: override.Granted, Source: SourceOverride}, nil
	}

	if user.RoleID != nil {
		granted, err := r.store.RoleGrant(ctx, *user.RoleID, perm.ID)
		if err != nil {
			return Decision{}, err
		}
		if granted != nil {
			return Decision{Allowed: *granted, Source: SourceRole}, nil
		}
	}

	return Decision{Allowed: false, Source: SourceDefault}, nil
}
