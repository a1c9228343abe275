package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TrailAction enumerates review trail actions.
type TrailAction string

const (
	// TrailSubmit marks the creation of an amendment request.
	TrailSubmit TrailAction = "SUBMIT"
	// TrailApprove marks an approval decision.
	TrailApprove TrailAction = "APPROVE"
	// TrailReject marks a rejection decision.
	TrailReject TrailAction = "REJECT"
)

// TrailEntry represents a single review trail record.
type TrailEntry struct {
	ID        int64
	RequestID uuid.UUID
	ActorID   int64
	Action    TrailAction
	Note      string
	At        time.Time
}

// ReviewTrail persists the submit/approve/reject history of amendment
// requests independently of the request rows themselves.
type ReviewTrail struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewReviewTrail constructs a ReviewTrail.
func NewReviewTrail(pool *pgxpool.Pool, logger *slog.Logger) *ReviewTrail {
	return &ReviewTrail{pool: pool, logger: logger}
}

// Record writes a trail entry.
func (t *ReviewTrail) Record(ctx context.Context, entry TrailEntry) error {
	if t == nil {
		return errors.New("review trail not initialised")
	}
	if entry.RequestID == uuid.Nil {
		return errors.New("trail request id required")
	}
	if entry.ActorID <= 0 && entry.ActorID != SystemActorID {
		return errors.New("trail actor required")
	}
	if entry.Action == "" {
		return errors.New("trail action required")
	}
	_, err := t.pool.Exec(ctx, `INSERT INTO review_trail (request_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, '0001-01-01 00:00:00+00'::timestamptz), NOW()))`,
		entry.RequestID, entry.ActorID, string(entry.Action), entry.Note, entry.At)
	if err != nil {
		t.logger.Error("record trail entry", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns trail entries for a request in chronological order.
func (t *ReviewTrail) List(ctx context.Context, requestID uuid.UUID) ([]TrailEntry, error) {
	if t == nil {
		return nil, errors.New("review trail not initialised")
	}
	rows, err := t.pool.Query(ctx, `SELECT id, request_id, actor_id, action, note, at
FROM review_trail WHERE request_id=$1 ORDER BY at ASC, id ASC`, requestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []TrailEntry
	for rows.Next() {
		var e TrailEntry
		var action string
		if err := rows.Scan(&e.ID, &e.RequestID, &e.ActorID, &action, &e.Note, &e.At); err != nil {
			return nil, err
		}
		e.Action = TrailAction(action)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
