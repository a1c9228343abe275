package shared

import "errors"

var (
	// ErrNotFound indicates an unknown user, permission, entity, or request.
	ErrNotFound = errors.New("not found")
	// ErrLimitExceeded indicates the active sub-user cap was reached.
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrInvalidState indicates an illegal lifecycle transition, such as
	// re-reviewing a terminal amendment request.
	ErrInvalidState = errors.New("invalid state")
	// ErrConflict indicates a lost concurrent-version race.
	ErrConflict = errors.New("conflict")
	// ErrInconsistent indicates the exactly-one-current-version invariant
	// does not hold for an entity.
	ErrInconsistent = errors.New("inconsistent version chain")
	// ErrValidation indicates a malformed change payload or input.
	ErrValidation = errors.New("validation failed")
	// ErrForbidden indicates the actor lacks the required permission.
	ErrForbidden = errors.New("forbidden")
)
