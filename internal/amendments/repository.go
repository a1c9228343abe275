package amendments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partnerdesk/partnerdesk/internal/platform/db"
)

// TxStore exposes the writes of the atomic approval path.
type TxStore interface {
	GetRequestForUpdate(ctx context.Context, id uuid.UUID) (Request, error)
	CurrentVersionForUpdate(ctx context.Context, ref EntityRef) (Version, error)
	CountVersions(ctx context.Context, ref EntityRef) (int, error)
	CloseVersion(ctx context.Context, ref EntityRef, version int, at time.Time) error
	InsertVersion(ctx context.Context, v Version) error
	MarkReviewed(ctx context.Context, id uuid.UUID, status Status, reviewerID int64, notes string, at time.Time) error
}

// Store defines persistence for amendment requests and entity versions.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	InsertRequest(ctx context.Context, req Request) error
	GetRequest(ctx context.Context, id uuid.UUID) (Request, error)
	CurrentVersion(ctx context.Context, ref EntityRef) (Version, error)
	ListVersions(ctx context.Context, ref EntityRef) ([]Version, error)
	ListStalePending(ctx context.Context) ([]Request, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside a transaction, exposing the transactional store.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// review_notes is NULL until review, so it is coalesced for the plain
// string field. reviewer_id and reviewed_at stay nullable pointers.
const requestColumns = `id, entity_kind, entity_id, changes, expected_version, requester_id, reason, impact, status, reviewer_id, COALESCE(review_notes, ''), reviewed_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (Request, error) {
	var req Request
	var changes []byte
	var status string
	err := row.Scan(&req.ID, &req.Entity.Kind, &req.Entity.ID, &changes, &req.ExpectedVersion,
		&req.RequesterID, &req.Reason, &req.Impact, &status,
		&req.ReviewerID, &req.ReviewNotes, &req.ReviewedAt, &req.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	req.Status = Status(status)
	if err := json.Unmarshal(changes, &req.Changes); err != nil {
		return Request{}, err
	}
	return req, nil
}

func scanVersion(row rowScanner) (Version, error) {
	var v Version
	var snapshot []byte
	err := row.Scan(&v.Entity.Kind, &v.Entity.ID, &v.Version, &snapshot, &v.ValidFrom, &v.ValidTo, &v.RequestID)
	if err != nil {
		return Version{}, err
	}
	if err := json.Unmarshal(snapshot, &v.Snapshot); err != nil {
		return Version{}, err
	}
	return v, nil
}

// InsertRequest persists a new PENDING request.
func (r *Repository) InsertRequest(ctx context.Context, req Request) error {
	changes, err := json.Marshal(req.Changes)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO amendment_requests
(id, entity_kind, entity_id, changes, expected_version, requester_id, reason, impact, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.Entity.Kind, req.Entity.ID, changes, req.ExpectedVersion,
		req.RequesterID, req.Reason, req.Impact, string(req.Status), req.CreatedAt)
	return err
}

// GetRequest fetches a request by id.
func (r *Repository) GetRequest(ctx context.Context, id uuid.UUID) (Request, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM amendment_requests WHERE id=$1`, id)
	return scanRequest(row)
}

// CurrentVersion returns the single open version of an entity. Zero open
// rows on an entity that has history, or more than one, is a corruption
// signal reported as ErrInconsistent.
func (r *Repository) CurrentVersion(ctx context.Context, ref EntityRef) (Version, error) {
	return currentVersion(ctx, r.pool, ref, "")
}

// ListVersions returns the full history ascending by version.
func (r *Repository) ListVersions(ctx context.Context, ref EntityRef) ([]Version, error) {
	rows, err := r.pool.Query(ctx, `SELECT entity_kind, entity_id, version, snapshot, valid_from, valid_to, amendment_request_id
FROM entity_versions WHERE entity_kind=$1 AND entity_id=$2 ORDER BY version ASC`, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var versions []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// ListStalePending returns PENDING requests whose pinned expected version
// no longer matches the entity's current version.
func (r *Repository) ListStalePending(ctx context.Context) ([]Request, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+`
FROM amendment_requests a
WHERE a.status = 'PENDING'
  AND a.expected_version IS NOT NULL
  AND a.expected_version <> (
      SELECT v.version FROM entity_versions v
      WHERE v.entity_kind = a.entity_kind AND v.entity_id = a.entity_id
        AND v.valid_to IS NULL
  )
ORDER BY a.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var requests []Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func currentVersion(ctx context.Context, q querier, ref EntityRef, lockSuffix string) (Version, error) {
	rows, err := q.Query(ctx, `SELECT entity_kind, entity_id, version, snapshot, valid_from, valid_to, amendment_request_id
FROM entity_versions WHERE entity_kind=$1 AND entity_id=$2 AND valid_to IS NULL`+lockSuffix, ref.Kind, ref.ID)
	if err != nil {
		return Version{}, err
	}
	defer rows.Close()
	var open []Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return Version{}, err
		}
		open = append(open, v)
	}
	if err := rows.Err(); err != nil {
		return Version{}, err
	}
	switch len(open) {
	case 1:
		return open[0], nil
	case 0:
		var total int
		if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM entity_versions WHERE entity_kind=$1 AND entity_id=$2`,
			ref.Kind, ref.ID).Scan(&total); err != nil {
			return Version{}, err
		}
		if total == 0 {
			return Version{}, ErrNotFound
		}
		return Version{}, ErrInconsistent
	default:
		return Version{}, ErrInconsistent
	}
}

type txRepository struct {
	tx pgx.Tx
}

// GetRequestForUpdate locks the request row for the review transition.
func (t *txRepository) GetRequestForUpdate(ctx context.Context, id uuid.UUID) (Request, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM amendment_requests WHERE id=$1 FOR UPDATE`, id)
	return scanRequest(row)
}

// CurrentVersionForUpdate locks the open version row so concurrent
// approvals on the same entity serialize.
func (t *txRepository) CurrentVersionForUpdate(ctx context.Context, ref EntityRef) (Version, error) {
	return currentVersion(ctx, t.tx, ref, " FOR UPDATE")
}

// CountVersions returns the number of versions an entity has.
func (t *txRepository) CountVersions(ctx context.Context, ref EntityRef) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM entity_versions WHERE entity_kind=$1 AND entity_id=$2`,
		ref.Kind, ref.ID).Scan(&count)
	return count, err
}

// CloseVersion stamps valid_to on the open version.
func (t *txRepository) CloseVersion(ctx context.Context, ref EntityRef, version int, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE entity_versions SET valid_to=$4
WHERE entity_kind=$1 AND entity_id=$2 AND version=$3 AND valid_to IS NULL`,
		ref.Kind, ref.ID, version, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrInconsistent
	}
	return nil
}

// InsertVersion appends a version row.
func (t *txRepository) InsertVersion(ctx context.Context, v Version) error {
	snapshot, err := json.Marshal(v.Snapshot)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO entity_versions
(entity_kind, entity_id, version, snapshot, valid_from, valid_to, amendment_request_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		v.Entity.Kind, v.Entity.ID, v.Version, snapshot, v.ValidFrom, v.ValidTo, v.RequestID)
	if db.IsUniqueViolation(err) {
		return ErrVersionConflict
	}
	return err
}

// MarkReviewed stamps the terminal status on a request.
func (t *txRepository) MarkReviewed(ctx context.Context, id uuid.UUID, status Status, reviewerID int64, notes string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `UPDATE amendment_requests
SET status=$2, reviewer_id=$3, review_notes=$4, reviewed_at=$5
WHERE id=$1 AND status='PENDING'`,
		id, string(status), reviewerID, notes, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrTerminal
	}
	return nil
}
