package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/partnerdesk/partnerdesk/internal/platform/db"
)

// TxStore exposes the writes that must run inside the per-parent critical
// section.
type TxStore interface {
	LockParent(ctx context.Context, parentID int64) (User, error)
	CountActiveSubUsers(ctx context.Context, parentID int64) (int, error)
	InsertSubUser(ctx context.Context, parentID int64, u User) (User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// Store defines persistence for user accounts.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetUser(ctx context.Context, id int64) (User, error)
	ListSubUsers(ctx context.Context, parentID int64) ([]User, error)
	SetActive(ctx context.Context, id int64, active bool) error
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

const userColumns = `u.id, u.email, u.name, u.role_id, u.partner_id, s.parent_id, u.is_active, u.created_at, u.updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.PartnerID, &u.ParentID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}

// GetUser fetches a user by id, including the sub-user parent link.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+`
FROM users u LEFT JOIN sub_users s ON s.user_id = u.id
WHERE u.id=$1`, id)
	return scanUser(row)
}

// ListSubUsers returns all sub-users of a parent, active or not.
func (r *Repository) ListSubUsers(ctx context.Context, parentID int64) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+`
FROM users u JOIN sub_users s ON s.user_id = u.id
WHERE s.parent_id=$1 ORDER BY u.id`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.RoleID, &u.PartnerID, &u.ParentID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, u)
	}
	return subs, rows.Err()
}

// SetActive toggles a user's is_active flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
}

// LockParent loads the parent row under FOR UPDATE, serializing concurrent
// sub-user writes for the same parent without blocking other parents.
func (t *txRepository) LockParent(ctx context.Context, parentID int64) (User, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+userColumns+`
FROM users u LEFT JOIN sub_users s ON s.user_id = u.id
WHERE u.id=$1
FOR UPDATE OF u`, parentID)
	return scanUser(row)
}

// CountActiveSubUsers counts is_active sub-users of a parent.
func (t *txRepository) CountActiveSubUsers(ctx context.Context, parentID int64) (int, error) {
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*)
FROM sub_users s JOIN users u ON u.id = s.user_id
WHERE s.parent_id=$1 AND u.is_active`, parentID).Scan(&count)
	return count, err
}

// InsertSubUser creates the user row and its parent link.
func (t *txRepository) InsertSubUser(ctx context.Context, parentID int64, u User) (User, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO users (email, name, role_id, partner_id, is_active)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING id, email, name, role_id, partner_id, is_active, created_at, updated_at`,
		u.Email, u.Name, u.RoleID, u.PartnerID)
	var created User
	err := row.Scan(&created.ID, &created.Email, &created.Name, &created.RoleID,
		&created.PartnerID, &created.IsActive, &created.CreatedAt, &created.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, ErrDuplicateEmail
		}
		return User{}, err
	}
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO sub_users (parent_id, user_id) VALUES ($1, $2)`, parentID, created.ID); err != nil {
		return User{}, err
	}
	created.ParentID = &parentID
	return created, nil
}

// SetActive toggles a user's is_active flag inside the transaction.
func (t *txRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
