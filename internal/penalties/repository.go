package penalties

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatebook/estatebook/internal/platform/db"
	"github.com/estatebook/estatebook/internal/shared"
)

// Repository persists penalties and finds late installments.
type Repository interface {
	// Candidates returns installments due before asOf that are unpaid or
	// were paid late, for projects charging a penalty.
	Candidates(ctx context.Context, asOf time.Time) ([]Candidate, error)
	LockByInstallment(ctx context.Context, installmentID int64) (Penalty, error)
	// Insert returns false when the installment already has a penalty.
	Insert(ctx context.Context, p Penalty) (Penalty, bool, error)
	UpdateAccrual(ctx context.Context, id int64, c Computation, asOf time.Time) error
	SetJournalEntry(ctx context.Context, id, entryID int64) error
	Get(ctx context.Context, id int64) (Penalty, error)
	Lock(ctx context.Context, id int64) (Penalty, error)
	List(ctx context.Context, filter ListFilter) ([]Penalty, int, error)
	MarkWaived(ctx context.Context, id int64, reason string) error
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

func (r *PGRepository) Candidates(ctx context.Context, asOf time.Time) ([]Candidate, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT ui.id, ui.definition_id, ui.project_id, ui.user_id, ui.title, ui.due_date,
	ui.share_amount, ui.paid_amount, ui.status, ui.paid_at, p.id, p.name, p.penalty_rate, p.grace_days
FROM user_installments ui
JOIN projects p ON p.id = ui.project_id
WHERE ui.due_date < $1
  AND p.penalty_rate > 0
  AND (ui.status <> 'PAID' OR ui.paid_at > ui.due_date)
ORDER BY ui.due_date, ui.id`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.Installment.ID, &c.Installment.DefinitionID, &c.Installment.ProjectID, &c.Installment.UserID,
			&c.Installment.Title, &c.Installment.DueDate, &c.Installment.ShareAmount, &c.Installment.PaidAmount,
			&c.Installment.Status, &c.Installment.PaidAt, &c.Project.ID, &c.Project.Name, &c.Project.PenaltyRate, &c.Project.GraceDays); err != nil {
			return nil, err
		}
		c.Installment.ProjectName = c.Project.Name
		out = append(out, c)
	}
	return out, rows.Err()
}

const penaltyColumns = `pn.id, pn.user_installment_id, ui.title, ui.due_date, pn.project_id, p.name, pn.user_id, u.name,
	pn.days_late, pn.daily_rate, pn.amount, pn.as_of, pn.status, pn.waive_reason, pn.journal_entry_id, pn.created_at, pn.updated_at`

const penaltyFrom = ` FROM penalties pn
JOIN user_installments ui ON ui.id = pn.user_installment_id
JOIN projects p ON p.id = pn.project_id
JOIN users u ON u.id = pn.user_id`

func scanPenalty(row pgx.Row) (Penalty, error) {
	var p Penalty
	err := row.Scan(&p.ID, &p.UserInstallmentID, &p.InstallmentTitle, &p.DueDate, &p.ProjectID, &p.ProjectName, &p.UserID, &p.UserName,
		&p.DaysLate, &p.DailyRate, &p.Amount, &p.AsOf, &p.Status, &p.WaiveReason, &p.JournalEntryID, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Penalty{}, ErrNotFound
	}
	return p, err
}

func (r *PGRepository) LockByInstallment(ctx context.Context, installmentID int64) (Penalty, error) {
	return scanPenalty(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+penaltyColumns+penaltyFrom+` WHERE pn.user_installment_id = $1 FOR UPDATE OF pn`, installmentID))
}

func (r *PGRepository) Insert(ctx context.Context, p Penalty) (Penalty, bool, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO penalties
(user_installment_id, project_id, user_id, days_late, daily_rate, amount, as_of, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,'ACCRUED')
ON CONFLICT ON CONSTRAINT uq_penalties_installment DO NOTHING
RETURNING id`, p.UserInstallmentID, p.ProjectID, p.UserID, p.DaysLate,
		shared.FormatAmount(p.DailyRate), shared.FormatAmount(p.Amount), p.AsOf).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return Penalty{}, false, nil
	}
	if err != nil {
		return Penalty{}, false, fmt.Errorf("penalties: insert: %w", err)
	}
	created, err := r.Get(ctx, id)
	return created, err == nil, err
}

func (r *PGRepository) UpdateAccrual(ctx context.Context, id int64, c Computation, asOf time.Time) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE penalties
SET days_late = $2, daily_rate = $3, amount = $4, as_of = $5, updated_at = NOW()
WHERE id = $1 AND status = 'ACCRUED'`, id, c.DaysLate, shared.FormatAmount(c.DailyRate), shared.FormatAmount(c.Amount), asOf)
	return err
}

func (r *PGRepository) SetJournalEntry(ctx context.Context, id, entryID int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE penalties SET journal_entry_id = $2, updated_at = NOW() WHERE id = $1`, id, entryID)
	return err
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Penalty, error) {
	return scanPenalty(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+penaltyColumns+penaltyFrom+` WHERE pn.id = $1`, id))
}

func (r *PGRepository) Lock(ctx context.Context, id int64) (Penalty, error) {
	return scanPenalty(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+penaltyColumns+penaltyFrom+` WHERE pn.id = $1 FOR UPDATE OF pn`, id))
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Penalty, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProjectID > 0 {
		add("pn.project_id = $%d", filter.ProjectID)
	}
	if filter.UserID > 0 {
		add("pn.user_id = $%d", filter.UserID)
	}
	if filter.Status != "" {
		add("pn.status = $%d", filter.Status)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+penaltyFrom+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + penaltyColumns + penaltyFrom + clause + ` ORDER BY pn.amount DESC, pn.id`
	if filter.PerPage > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		args = append(args, filter.PerPage, (page-1)*filter.PerPage)
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	}
	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Penalty
	for rows.Next() {
		p, err := scanPenalty(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) MarkWaived(ctx context.Context, id int64, reason string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE penalties SET status = 'WAIVED', waive_reason = $2, updated_at = NOW()
WHERE id = $1 AND status = 'ACCRUED'`, id, reason)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyWaived
	}
	return nil
}
