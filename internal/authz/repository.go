package authz

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed persistence for the authorization
// subsystem. It implements ResolverStore plus the management reads/writes
// used by Service.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// UserAccess returns the activity flag and role link for a user.
func (r *Repository) UserAccess(ctx context.Context, userID int64) (UserAccess, error) {
	var ua UserAccess
	err := r.pool.QueryRow(ctx,
		`SELECT id, is_active, role_id FROM users WHERE id=$1`, userID).
		Scan(&ua.ID, &ua.IsActive, &ua.RoleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UserAccess{}, ErrNotFound
		}
		return UserAccess{}, err
	}
	return ua, nil
}

// PermissionByKey fetches a permission and its owning module by key/action.
func (r *Repository) PermissionByKey(ctx context.Context, key, action string) (Permission, Module, error) {
	var p Permission
	var m Module
	err := r.pool.QueryRow(ctx, `SELECT p.id, p.module_id, p.permission_key, p.action, p.description, p.is_active,
       m.id, m.module_key, m.name, m.is_active
FROM permissions p
JOIN modules m ON m.id = p.module_id
WHERE p.permission_key=$1 AND p.action=$2`, key, action).
		Scan(&p.ID, &p.ModuleID, &p.Key, &p.Action, &p.Description, &p.IsActive,
			&m.ID, &m.Key, &m.Name, &m.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, Module{}, ErrNotFound
		}
		return Permission{}, Module{}, err
	}
	return p, m, nil
}

// Override returns the user override for a permission, or nil when absent.
// Expiry is evaluated by the caller so the clock stays injectable.
func (r *Repository) Override(ctx context.Context, userID, permissionID int64) (*Override, error) {
	var o Override
	err := r.pool.QueryRow(ctx, `SELECT user_id, permission_id, granted, expires_at, reason, granted_by, created_at
FROM user_permission_overrides WHERE user_id=$1 AND permission_id=$2`, userID, permissionID).
		Scan(&o.UserID, &o.PermissionID, &o.Granted, &o.ExpiresAt, &o.Reason, &o.GrantedBy, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// RoleGrant returns the granted flag of a role-permission link, or nil when
// the role carries no entry for the permission.
func (r *Repository) RoleGrant(ctx context.Context, roleID, permissionID int64) (*bool, error) {
	var granted bool
	err := r.pool.QueryRow(ctx,
		`SELECT granted FROM role_permissions WHERE role_id=$1 AND permission_id=$2`,
		roleID, permissionID).Scan(&granted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &granted, nil
}

// CreateModule inserts a new module.
func (r *Repository) CreateModule(ctx context.Context, key, name string) (Module, error) {
	var m Module
	err := r.pool.QueryRow(ctx, `INSERT INTO modules (module_key, name, is_active)
VALUES ($1, $2, TRUE)
RETURNING id, module_key, name, is_active, created_at, updated_at`, key, name).
		Scan(&m.ID, &m.Key, &m.Name, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return Module{}, err
	}
	return m, nil
}

// SetModuleActive toggles a module's soft-delete flag.
func (r *Repository) SetModuleActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE modules SET is_active=$2, updated_at=NOW() WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListModules returns all modules ordered by key.
func (r *Repository) ListModules(ctx context.Context) ([]Module, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, module_key, name, is_active, created_at, updated_at FROM modules ORDER BY module_key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var modules []Module
	for rows.Next() {
		var m Module
		if err := rows.Scan(&m.ID, &m.Key, &m.Name, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		modules = append(modules, m)
	}
	return modules, rows.Err()
}

// EnsurePermission upserts a permission under a module.
func (r *Repository) EnsurePermission(ctx context.Context, moduleID int64, key, action, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `INSERT INTO permissions (module_id, permission_key, action, description, is_active)
VALUES ($1, $2, $3, $4, TRUE)
ON CONFLICT (module_id, permission_key, action)
DO UPDATE SET description = EXCLUDED.description
RETURNING id, module_id, permission_key, action, description, is_active`,
		moduleID, key, action, description).
		Scan(&p.ID, &p.ModuleID, &p.Key, &p.Action, &p.Description, &p.IsActive)
	if err != nil {
		return Permission{}, err
	}
	return p, nil
}

// ListPermissions returns permissions for a module ordered by key then action.
func (r *Repository) ListPermissions(ctx context.Context, moduleID int64) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, module_id, permission_key, action, description, is_active
FROM permissions WHERE module_id=$1 ORDER BY permission_key, action`, moduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.ModuleID, &p.Key, &p.Action, &p.Description, &p.IsActive); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// CreateRole inserts a new role.
func (r *Repository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `INSERT INTO roles (name, description)
VALUES ($1, $2)
RETURNING id, name, description, created_at, updated_at`, name, description).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles WHERE id=$1`, id).
		Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoleGrants returns every grant attached to a role.
func (r *Repository) ListRoleGrants(ctx context.Context, roleID int64) ([]RoleGrant, error) {
	rows, err := r.pool.Query(ctx, `SELECT role_id, permission_id, granted, created_at
FROM role_permissions WHERE role_id=$1 ORDER BY permission_id`, roleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []RoleGrant
	for rows.Next() {
		var g RoleGrant
		if err := rows.Scan(&g.RoleID, &g.PermissionID, &g.Granted, &g.CreatedAt); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// UpsertRoleGrant attaches or updates a role-permission link.
func (r *Repository) UpsertRoleGrant(ctx context.Context, roleID, permissionID int64, granted bool) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id, granted)
VALUES ($1, $2, $3)
ON CONFLICT (role_id, permission_id) DO UPDATE SET granted = EXCLUDED.granted`,
		roleID, permissionID, granted)
	return err
}

// DeleteRoleGrant detaches a permission from a role.
func (r *Repository) DeleteRoleGrant(ctx context.Context, roleID, permissionID int64) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM role_permissions WHERE role_id=$1 AND permission_id=$2`, roleID, permissionID)
	return err
}

// AssignRole sets the user's role link.
func (r *Repository) AssignRole(ctx context.Context, userID, roleID int64) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET role_id=$2, updated_at=NOW() WHERE id=$1`, userID, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PutOverride upserts a user-specific override.
func (r *Repository) PutOverride(ctx context.Context, o Override) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO user_permission_overrides (user_id, permission_id, granted, expires_at, reason, granted_by)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id, permission_id)
DO UPDATE SET granted = EXCLUDED.granted, expires_at = EXCLUDED.expires_at,
              reason = EXCLUDED.reason, granted_by = EXCLUDED.granted_by`,
		o.UserID, o.PermissionID, o.Granted, o.ExpiresAt, o.Reason, o.GrantedBy)
	return err
}

// DeleteOverride removes a user-specific override.
func (r *Repository) DeleteOverride(ctx context.Context, userID, permissionID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_permission_overrides WHERE user_id=$1 AND permission_id=$2`,
		userID, permissionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpiredOverrides removes overrides whose expiry has passed and
// returns the number of rows deleted.
func (r *Repository) DeleteExpiredOverrides(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM user_permission_overrides WHERE expires_at IS NOT NULL AND expires_at <= $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// EffectivePermissions returns the distinct permission key/action pairs a
// user is allowed, combining role grants with non-expired overrides.
func (r *Repository) EffectivePermissions(ctx context.Context, userID int64, at time.Time) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `SELECT p.id, p.module_id, p.permission_key, p.action, p.description, p.is_active
FROM permissions p
JOIN modules m ON m.id = p.module_id AND m.is_active
LEFT JOIN user_permission_overrides o
       ON o.permission_id = p.id AND o.user_id = $1
      AND (o.expires_at IS NULL OR o.expires_at > $2)
LEFT JOIN role_permissions rp
       ON rp.permission_id = p.id
      AND rp.role_id = (SELECT role_id FROM users WHERE id = $1)
WHERE p.is_active
  AND COALESCE(o.granted, rp.granted, FALSE)
ORDER BY p.permission_key, p.action`, userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.ModuleID, &p.Key, &p.Action, &p.Description, &p.IsActive); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}
