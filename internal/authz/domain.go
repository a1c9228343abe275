package authz

import (
	"fmt"
	"time"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// ErrNotFound indicates that the requested record does not exist.
var ErrNotFound = fmt.Errorf("authz: %w", shared.ErrNotFound)

// Module represents a named capability area grouping permissions.
type Module struct {
	ID        int64
	Key       string
	Name      string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Permission represents an atomic grantable capability, identified by the
// (module, permission key, action) triple.
type Permission struct {
	ID          int64
	ModuleID    int64
	Key         string
	Action      string
	Description string
	IsActive    bool
}

// Role represents a named bundle of permission grants.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// RoleGrant ties a permission to a role. Granted false is an explicit
// deny-by-role, distinct from the absence of a grant.
type RoleGrant struct {
	RoleID       int64
	PermissionID int64
	Granted      bool
	CreatedAt    time.Time
}

// Override is a user-specific grant or deny that supersedes role-derived
// access. A nil ExpiresAt means the override never expires.
type Override struct {
	UserID       int64
	PermissionID int64
	Granted      bool
	ExpiresAt    *time.Time
	Reason       string
	GrantedBy    int64
	CreatedAt    time.Time
}

// Expired reports whether the override has lapsed at the given instant.
func (o Override) Expired(at time.Time) bool {
	return o.ExpiresAt != nil && !o.ExpiresAt.After(at)
}

// Source identifies which rule produced a decision.
type Source string

const (
	// SourceOverride means a non-expired user override decided.
	SourceOverride Source = "override"
	// SourceRole means the user's role grant decided.
	SourceRole Source = "role"
	// SourceDefault means no grant existed and the allow-list default applied.
	SourceDefault Source = "default"
	// SourceInactive means the module, permission, or user is inactive.
	SourceInactive Source = "inactive"
)

// Decision is the outcome of a permission resolution. Deny is a normal
// value, not an error; Source is retained for internal logging so callers
// can distinguish deny-vs-inactive without leaking that distinction outward.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Source  Source `json:"source"`
}

// UserAccess is the slice of a user record the resolver needs.
type UserAccess struct {
	ID       int64
	IsActive bool
	RoleID   *int64
}
