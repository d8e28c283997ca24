package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatebook/estatebook/internal/platform/db"
)

// Repository reads audit_logs.
type Repository interface {
	// Window returns up to limit entries matching filters, newest first.
	// A limit of zero returns every match.
	Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error)
}

// PGRepository queries PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

func (r *PGRepository) Window(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(cond, "$?", fmt.Sprintf("$%d", len(args))))
	}
	if !filters.From.IsZero() {
		add("a.occurred_at >= $?", filters.From)
	}
	if !filters.To.IsZero() {
		add("a.occurred_at < $?", filters.To.AddDate(0, 0, 1))
	}
	if actor := strings.TrimSpace(filters.Actor); actor != "" {
		if strings.EqualFold(actor, "system") {
			where = append(where, "a.actor_id = 0")
		} else {
			add("(u.name ILIKE $? OR u.email ILIKE $?)", "%"+actor+"%")
		}
	}
	if entity := strings.TrimSpace(filters.Entity); entity != "" {
		add("a.entity = $?", entity)
	}
	if action := strings.TrimSpace(filters.Action); action != "" {
		add("a.action ILIKE $?", action+"%")
	}
	query := `SELECT a.id, a.occurred_at, a.actor_id, COALESCE(u.name, ''), COALESCE(u.email, ''),
	a.action, a.entity, a.entity_id, a.meta::text
FROM audit_logs a
LEFT JOIN users u ON u.id = a.actor_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.occurred_at DESC, a.id DESC"
	if limit > 0 {
		args = append(args, limit, offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := db.Conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query trail: %w", err)
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.At, &e.ActorID, &e.ActorName, &e.ActorEmail, &e.Action, &e.Entity, &e.EntityID, &e.Meta); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
