package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatebook/estatebook/internal/platform/db"
)

// Repository persists users.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, u User, passwordHash string) (User, error)
	Update(ctx context.Context, u User) (User, error)
	SetPassword(ctx context.Context, id int64, passwordHash string) error
	SetActive(ctx context.Context, id int64, active bool) error
}

// PGRepository provides PostgreSQL backed persistence.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

const userColumns = `id, email, name, phone, national_id, is_active, created_at, updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Phone, &u.NationalID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

// List returns one page of users plus the total row count.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		where = append(where, fmt.Sprintf("(lower(name) LIKE $%d OR lower(email) LIKE $%d OR national_id LIKE $%d)", len(args), len(args), len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM users`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit, offset := pageWindow(filter)
	args = append(args, limit, offset)
	query := fmt.Sprintf(`SELECT %s FROM users%s ORDER BY name, id LIMIT $%d OFFSET $%d`, userColumns, clause, len(args)-1, len(args))
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) Get(ctx context.Context, id int64) (User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *PGRepository) Create(ctx context.Context, u User, passwordHash string) (User, error) {
	created, err := scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO users (email, name, phone, national_id, password_hash, is_active)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING `+userColumns,
		u.Email, u.Name, u.Phone, u.NationalID, passwordHash, u.IsActive))
	if db.IsUniqueViolation(err, "uq_users_email") {
		return User{}, ErrDuplicateEmail
	}
	return created, err
}

func (r *PGRepository) Update(ctx context.Context, u User) (User, error) {
	updated, err := scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `UPDATE users
SET email = $2, name = $3, phone = $4, national_id = $5, updated_at = NOW()
WHERE id = $1 RETURNING `+userColumns,
		u.ID, u.Email, u.Name, u.Phone, u.NationalID))
	if db.IsUniqueViolation(err, "uq_users_email") {
		return User{}, ErrDuplicateEmail
	}
	return updated, err
}

func (r *PGRepository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func pageWindow(filter ListFilter) (int, int) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 25
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}
