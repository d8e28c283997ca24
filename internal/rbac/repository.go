package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatebook/estatebook/internal/platform/db"
)

// Repository persists roles, permissions and their assignments.
type Repository interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	FindRoleByName(ctx context.Context, name string) (Role, error)
	CreateRole(ctx context.Context, name, description string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) (int64, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpsertPermission(ctx context.Context, name, description string) (Permission, error)
	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	AttachPermission(ctx context.Context, roleID, permissionID int64) error
	DetachPermission(ctx context.Context, roleID, permissionID int64) error
	UserRoleIDs(ctx context.Context, userID int64) ([]int64, error)
	AssignRole(ctx context.Context, userID, roleID int64) error
	RemoveRole(ctx context.Context, userID, roleID int64) error
	EffectivePermissions(ctx context.Context, userID int64) ([]string, error)
	Identity(ctx context.Context, userID int64) (Identity, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const roleColumns = `id, name, description, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var role Role
	err := row.Scan(&role.ID, &role.Name, &role.Description, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Role{}, ErrNotFound
	}
	return role, err
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

func (r *PGRepository) FindRoleByName(ctx context.Context, name string) (Role, error) {
	return scanRole(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE lower(name) = lower($1)`, name))
}

func (r *PGRepository) CreateRole(ctx context.Context, name, description string) (Role, error) {
	role, err := scanRole(db.Conn(ctx, r.pool).QueryRow(ctx,
		`INSERT INTO roles (name, description) VALUES ($1, $2) RETURNING `+roleColumns, name, description))
	if db.IsUniqueViolation(err, "") {
		return Role{}, ErrDuplicateRole
	}
	return role, err
}

func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	role, err := scanRole(db.Conn(ctx, r.pool).QueryRow(ctx,
		`UPDATE roles SET name = $2, description = $3, updated_at = NOW() WHERE id = $1 RETURNING `+roleColumns, id, name, description))
	if db.IsUniqueViolation(err, "") {
		return Role{}, ErrDuplicateRole
	}
	return role, err
}

func (r *PGRepository) DeleteRole(ctx context.Context, id int64) (int64, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PGRepository) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT id, name, description FROM permissions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.Name, &p.Description); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

func (r *PGRepository) UpsertPermission(ctx context.Context, name, description string) (Permission, error) {
	var p Permission
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO permissions (name, description) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
RETURNING id, name, description`, strings.ToLower(name), description).Scan(&p.ID, &p.Name, &p.Description)
	return p, err
}

func (r *PGRepository) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return r.collectIDs(ctx, `SELECT permission_id FROM role_permissions WHERE role_id = $1 ORDER BY permission_id`, roleID)
}

func (r *PGRepository) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, roleID, permissionID)
	return err
}

func (r *PGRepository) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	return err
}

func (r *PGRepository) UserRoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	return r.collectIDs(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
}

func (r *PGRepository) AssignRole(ctx context.Context, userID, roleID int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, userID, roleID)
	return err
}

func (r *PGRepository) RemoveRole(ctx context.Context, userID, roleID int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	return err
}

func (r *PGRepository) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT DISTINCT p.name
FROM user_roles ur
JOIN role_permissions rp ON rp.role_id = ur.role_id
JOIN permissions p ON p.id = rp.permission_id
WHERE ur.user_id = $1
ORDER BY p.name`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		perms = append(perms, name)
	}
	return perms, rows.Err()
}

func (r *PGRepository) Identity(ctx context.Context, userID int64) (Identity, error) {
	var id Identity
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT id, name, email, is_active FROM users WHERE id = $1`, userID).
		Scan(&id.ID, &id.Name, &id.Email, &id.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	return id, err
}

func (r *PGRepository) collectIDs(ctx context.Context, query string, arg int64) ([]int64, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
