package users

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// A parent account may own at most this many active sub-users.
const MaxActiveSubUsers = 2

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = fmt.Errorf("users: %w", shared.ErrNotFound)
	// ErrSubUserLimit indicates the active sub-user cap was reached.
	ErrSubUserLimit = fmt.Errorf("users: active sub-user limit reached: %w", shared.ErrLimitExceeded)
	// ErrNestedSubUser indicates an attempt to create a sub-user under a sub-user.
	ErrNestedSubUser = fmt.Errorf("users: sub-users cannot own sub-users: %w", shared.ErrValidation)
	// ErrParentInactive indicates the parent account is deactivated.
	ErrParentInactive = fmt.Errorf("users: parent account inactive: %w", shared.ErrValidation)
	// ErrNotSubUser indicates the target user has no parent link.
	ErrNotSubUser = fmt.Errorf("users: not a sub-user: %w", shared.ErrValidation)
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = fmt.Errorf("users: email already registered: %w", shared.ErrValidation)
)

// User represents a user account. A non-nil ParentID marks a sub-user,
// which inherits the parent's role and business-partner scope and cannot
// own sub-users of its own.
type User struct {
	ID        int64      `json:"id"`
	Email     string     `json:"email"`
	Name      string     `json:"name"`
	RoleID    *int64     `json:"role_id,omitempty"`
	PartnerID *uuid.UUID `json:"partner_id,omitempty"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// SubUserAttrs carries the caller-supplied fields of a new sub-user. Role
// and partner scope are inherited from the parent, never supplied.
type SubUserAttrs struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}
