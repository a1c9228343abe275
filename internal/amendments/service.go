package amendments

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/partnerdesk/partnerdesk/internal/authz"
	"github.com/partnerdesk/partnerdesk/internal/shared"
)

// Permission guarding the review operation.
const (
	ReviewPermissionKey    = "amendments.review"
	ReviewPermissionAction = "approve"
)

// PermissionChecker is the slice of the authorization resolver the engine
// needs for approval gating.
type PermissionChecker interface {
	Resolve(ctx context.Context, userID int64, key, action string) (authz.Decision, error)
}

// TrailRecorder persists the submit/approve/reject history. May be nil.
type TrailRecorder interface {
	Record(ctx context.Context, entry shared.TrailEntry) error
}

// Service is the amendment/versioning engine: it accepts proposed changes
// to versioned entities, gates their review on the permission resolver, and
// materializes approved changes as new immutable version snapshots.
type Service struct {
	store    Store
	registry *Registry
	perms    PermissionChecker
	trail    TrailRecorder
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a Service. trail may be nil.
func NewService(store Store, registry *Registry, perms PermissionChecker, trail TrailRecorder, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		registry: registry,
		perms:    perms,
		trail:    trail,
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateInitial seeds version 1 of a new entity. The snapshot is validated
// against the kind schema; the version carries no amendment back-reference.
func (s *Service) CreateInitial(ctx context.Context, ref EntityRef, snapshot map[string]any) (Version, error) {
	if err := ref.validate(); err != nil {
		return Version{}, err
	}
	if err := s.registry.ValidateSnapshot(ref.Kind, snapshot); err != nil {
		return Version{}, err
	}
	version := Version{
		Entity:    ref,
		Version:   1,
		Snapshot:  snapshot,
		ValidFrom: s.now(),
	}
	err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		count, err := tx.CountVersions(ctx, ref)
		if err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("amendments: entity already versioned: %w", shared.ErrInvalidState)
		}
		return tx.InsertVersion(ctx, version)
	})
	if err != nil {
		return Version{}, err
	}
	return version, nil
}

// Submit records a proposed change as a PENDING request. The entity must
// already have a current version and the payload must satisfy the kind
// schema. Nothing on the entity is mutated.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Request, error) {
	if err := in.Entity.validate(); err != nil {
		return Request{}, err
	}
	if in.RequesterID == 0 {
		return Request{}, fmt.Errorf("amendments: requester required: %w", shared.ErrValidation)
	}
	if err := s.registry.ValidateChange(in.Entity.Kind, in.Changes); err != nil {
		return Request{}, err
	}

	current, err := s.store.CurrentVersion(ctx, in.Entity)
	if err != nil {
		return Request{}, err
	}
	if in.ExpectedVersion != nil && *in.ExpectedVersion != current.Version {
		return Request{}, ErrVersionConflict
	}

	req := Request{
		ID:              uuid.New(),
		Entity:          in.Entity,
		Changes:         in.Changes,
		ExpectedVersion: in.ExpectedVersion,
		RequesterID:     in.RequesterID,
		Reason:          strings.TrimSpace(in.Reason),
		Impact:          strings.TrimSpace(in.Impact),
		Status:          StatusPending,
		CreatedAt:       s.now(),
	}
	if err := s.store.InsertRequest(ctx, req); err != nil {
		return Request{}, err
	}
	s.record(ctx, shared.TrailEntry{
		RequestID: req.ID, ActorID: req.RequesterID,
		Action: shared.TrailSubmit, Note: req.Reason, At: req.CreatedAt,
	})
	return req, nil
}

// Review applies a terminal decision to a PENDING request. The reviewer
// must hold the approval permission. Approval atomically closes the current
// version, writes the merged snapshot as version N+1, and stamps the
// request; rejection only stamps the request. Re-reviewing a terminal
// request fails with ErrTerminal regardless of the decision.
func (s *Service) Review(ctx context.Context, requestID uuid.UUID, reviewerID int64, decision ReviewDecision, notes string) (Request, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return Request{}, fmt.Errorf("amendments: unknown decision %q: %w", decision, shared.ErrValidation)
	}
	allowed, err := s.perms.Resolve(ctx, reviewerID, ReviewPermissionKey, ReviewPermissionAction)
	if err != nil {
		return Request{}, err
	}
	if !allowed.Allowed {
		return Request{}, ErrNotAllowed
	}

	now := s.now()
	var reviewed Request
	err = s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		req, err := tx.GetRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status.Terminal() {
			return ErrTerminal
		}

		if decision == DecisionReject {
			if err := tx.MarkReviewed(ctx, req.ID, StatusRejected, reviewerID, notes, now); err != nil {
				return err
			}
			reviewed = req
			reviewed.Status = StatusRejected
			return nil
		}

		current, err := tx.CurrentVersionForUpdate(ctx, req.Entity)
		if err != nil {
			return err
		}
		if req.ExpectedVersion != nil && *req.ExpectedVersion != current.Version {
			return ErrVersionConflict
		}

		merged := mergeSnapshot(current.Snapshot, req.Changes)
		if err := s.registry.ValidateSnapshot(req.Entity.Kind, merged); err != nil {
			return err
		}

		if err := tx.CloseVersion(ctx, req.Entity, current.Version, now); err != nil {
			return err
		}
		if err := tx.InsertVersion(ctx, Version{
			Entity:    req.Entity,
			Version:   current.Version + 1,
			Snapshot:  merged,
			ValidFrom: now,
			RequestID: &req.ID,
		}); err != nil {
			return err
		}
		if err := tx.MarkReviewed(ctx, req.ID, StatusApproved, reviewerID, notes, now); err != nil {
			return err
		}
		reviewed = req
		reviewed.Status = StatusApproved
		return nil
	})
	if err != nil {
		return Request{}, err
	}

	reviewed.ReviewerID = &reviewerID
	reviewed.ReviewNotes = notes
	reviewed.ReviewedAt = &now

	action := shared.TrailApprove
	if decision == DecisionReject {
		action = shared.TrailReject
	}
	s.record(ctx, shared.TrailEntry{
		RequestID: reviewed.ID, ActorID: reviewerID, Action: action, Note: notes, At: now,
	})
	if s.logger != nil {
		s.logger.Info("amendment reviewed",
			slog.String("request", reviewed.ID.String()),
			slog.String("status", string(reviewed.Status)),
			slog.Int64("reviewer", reviewerID))
	}
	return reviewed, nil
}

// GetRequest fetches a request by id.
func (s *Service) GetRequest(ctx context.Context, id uuid.UUID) (Request, error) {
	return s.store.GetRequest(ctx, id)
}

// CurrentOf returns the entity's current version.
func (s *Service) CurrentOf(ctx context.Context, ref EntityRef) (Version, error) {
	if err := ref.validate(); err != nil {
		return Version{}, err
	}
	return s.store.CurrentVersion(ctx, ref)
}

// HistoryOf returns the entity's full version history ascending.
func (s *Service) HistoryOf(ctx context.Context, ref EntityRef) ([]Version, error) {
	if err := ref.validate(); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, ref)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

// SweepStale auto-rejects PENDING requests whose pinned expected version
// was overtaken by another approval. Returns the number of requests closed.
func (s *Service) SweepStale(ctx context.Context, systemActorID int64) (int, error) {
	stale, err := s.store.ListStalePending(ctx)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, req := range stale {
		now := s.now()
		rejected := false
		err := s.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
			locked, err := tx.GetRequestForUpdate(ctx, req.ID)
			if err != nil {
				return err
			}
			if locked.Status.Terminal() {
				return nil
			}
			if err := tx.MarkReviewed(ctx, locked.ID, StatusRejected, systemActorID,
				"superseded: entity changed since submission", now); err != nil {
				return err
			}
			rejected = true
			return nil
		})
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("stale sweep skip",
					slog.String("request", req.ID.String()), slog.Any("error", err))
			}
			continue
		}
		if !rejected {
			continue
		}
		s.record(ctx, shared.TrailEntry{
			RequestID: req.ID, ActorID: systemActorID,
			Action: shared.TrailReject, Note: "superseded by a newer approved version", At: now,
		})
		closed++
	}
	return closed, nil
}

func (s *Service) record(ctx context.Context, entry shared.TrailEntry) {
	if s.trail == nil {
		return
	}
	if err := s.trail.Record(ctx, entry); err != nil && s.logger != nil {
		s.logger.Warn("review trail record", slog.Any("error", err))
	}
}
