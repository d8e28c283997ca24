package dashboard

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatebook/estatebook/internal/platform/db"
)

// Repository runs the dashboard aggregates.
type Repository interface {
	Summary(ctx context.Context, asOf time.Time) (Summary, error)
	Progress(ctx context.Context, asOf time.Time) ([]ProjectProgress, error)
	Trend(ctx context.Context, from, to time.Time) ([]MonthPoint, error)
}

// PGRepository provides PostgreSQL backed aggregates.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

func (r *PGRepository) Summary(ctx context.Context, asOf time.Time) (Summary, error) {
	var s Summary
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT
	(SELECT COUNT(*) FROM projects),
	(SELECT COUNT(DISTINCT user_id) FROM project_members),
	COALESCE(SUM(ui.share_amount), 0),
	COALESCE(SUM(ui.paid_amount), 0),
	COALESCE(SUM(ui.share_amount - ui.paid_amount), 0),
	COUNT(*) FILTER (WHERE ui.status <> 'PAID' AND ui.due_date < $1),
	COALESCE(SUM(ui.share_amount - ui.paid_amount) FILTER (WHERE ui.status <> 'PAID' AND ui.due_date < $1), 0),
	(SELECT COALESCE(SUM(amount), 0) FROM penalties WHERE status = 'ACCRUED')
FROM user_installments ui`, asOf).Scan(
		&s.Projects, &s.Members, &s.Billed, &s.Collected, &s.Outstanding,
		&s.OverdueCount, &s.OverdueAmount, &s.AccruedPenalties)
	return s, err
}

func (r *PGRepository) Progress(ctx context.Context, asOf time.Time) ([]ProjectProgress, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT p.id, p.code, p.name, p.status,
	(SELECT COUNT(*) FROM project_members pm WHERE pm.project_id = p.id),
	COALESCE(SUM(ui.share_amount), 0),
	COALESCE(SUM(ui.paid_amount), 0),
	COALESCE(SUM(ui.share_amount - ui.paid_amount) FILTER (WHERE ui.status <> 'PAID' AND ui.due_date < $1), 0)
FROM projects p
LEFT JOIN user_installments ui ON ui.project_id = p.id
GROUP BY p.id
ORDER BY p.code`, asOf)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (ProjectProgress, error) {
		var p ProjectProgress
		err := row.Scan(&p.ProjectID, &p.Code, &p.Name, &p.Status, &p.Members, &p.Billed, &p.Collected, &p.Overdue)
		return p, err
	})
}

// Trend returns one point per month between from and to, both inclusive,
// with billing by due date and collection by payment date.
func (r *PGRepository) Trend(ctx context.Context, from, to time.Time) ([]MonthPoint, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `WITH months AS (
	SELECT generate_series(date_trunc('month', $1::date), date_trunc('month', $2::date), interval '1 month')::date AS month
)
SELECT m.month,
	COALESCE((SELECT SUM(ui.share_amount) FROM user_installments ui WHERE date_trunc('month', ui.due_date)::date = m.month), 0),
	COALESCE((SELECT SUM(pay.amount) FROM payments pay WHERE date_trunc('month', pay.paid_at)::date = m.month), 0)
FROM months m
ORDER BY m.month`, from, to)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MonthPoint, error) {
		var p MonthPoint
		err := row.Scan(&p.Month, &p.Billed, &p.Collected)
		return p, err
	})
}
