package amendments

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/partnerdesk/partnerdesk/internal/shared"
)

var (
	// ErrNotFound indicates an unknown entity or amendment request.
	ErrNotFound = fmt.Errorf("amendments: %w", shared.ErrNotFound)
	// ErrTerminal indicates a review against a request already decided.
	ErrTerminal = fmt.Errorf("amendments: request already reviewed: %w", shared.ErrInvalidState)
	// ErrVersionConflict indicates a lost concurrent-approval race or a
	// stale expected version.
	ErrVersionConflict = fmt.Errorf("amendments: version conflict: %w", shared.ErrConflict)
	// ErrInconsistent indicates the entity's version chain does not have
	// exactly one current row.
	ErrInconsistent = fmt.Errorf("amendments: %w", shared.ErrInconsistent)
	// ErrNotAllowed indicates the reviewer lacks the approval permission.
	ErrNotAllowed = fmt.Errorf("amendments: reviewer not permitted: %w", shared.ErrForbidden)
)

// Status captures the amendment request lifecycle. PENDING transitions to
// exactly one of the terminal states.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Terminal reports whether no further transitions are permitted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// ReviewDecision is the outcome a reviewer selects.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "APPROVED"
	DecisionReject  ReviewDecision = "REJECTED"
)

// EntityRef identifies one versioned entity.
type EntityRef struct {
	Kind string    `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

func (r EntityRef) validate() error {
	if r.Kind == "" {
		return fmt.Errorf("amendments: entity kind required: %w", shared.ErrValidation)
	}
	if r.ID == uuid.Nil {
		return fmt.Errorf("amendments: entity id required: %w", shared.ErrValidation)
	}
	return nil
}

// Request proposes a change to one versioned entity.
type Request struct {
	ID              uuid.UUID      `json:"id"`
	Entity          EntityRef      `json:"entity"`
	Changes         map[string]any `json:"changes"`
	ExpectedVersion *int           `json:"expected_version,omitempty"`
	RequesterID     int64          `json:"requester_id"`
	Reason          string         `json:"reason"`
	Impact          string         `json:"impact,omitempty"`
	Status          Status         `json:"status"`
	ReviewerID      *int64         `json:"reviewer_id,omitempty"`
	ReviewNotes     string         `json:"review_notes,omitempty"`
	ReviewedAt      *time.Time     `json:"reviewed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Version is one immutable snapshot in an entity's history. Exactly one
// version per entity has a nil ValidTo: the current one. RequestID is nil
// only for the initial version.
type Version struct {
	Entity    EntityRef      `json:"entity"`
	Version   int            `json:"version"`
	Snapshot  map[string]any `json:"snapshot"`
	ValidFrom time.Time      `json:"valid_from"`
	ValidTo   *time.Time     `json:"valid_to,omitempty"`
	RequestID *uuid.UUID     `json:"amendment_request_id,omitempty"`
}

// SubmitInput bundles the parameters of Submit.
type SubmitInput struct {
	Entity          EntityRef
	Changes         map[string]any
	RequesterID     int64
	Reason          string
	Impact          string
	ExpectedVersion *int
}
