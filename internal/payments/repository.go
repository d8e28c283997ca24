package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatebook/estatebook/internal/platform/db"
	"github.com/estatebook/estatebook/internal/shared"
)

// Repository persists payments.
type Repository interface {
	Insert(ctx context.Context, p Payment) (Payment, error)
	Get(ctx context.Context, id int64) (Payment, error)
	List(ctx context.Context, filter ListFilter) ([]Payment, int, error)
	SetJournalEntry(ctx context.Context, id, entryID int64) error
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

const paymentColumns = `pm.id, pm.user_installment_id, ui.title, pm.project_id, p.name, pm.user_id, u.name,
	pm.amount, pm.paid_at, pm.method, pm.reference, pm.note, pm.journal_entry_id, pm.created_by, pm.created_at`

const paymentFrom = ` FROM payments pm
JOIN user_installments ui ON ui.id = pm.user_installment_id
JOIN projects p ON p.id = pm.project_id
JOIN users u ON u.id = pm.user_id`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.UserInstallmentID, &p.InstallmentTitle, &p.ProjectID, &p.ProjectName, &p.UserID, &p.UserName,
		&p.Amount, &p.PaidAt, &p.Method, &p.Reference, &p.Note, &p.JournalEntryID, &p.CreatedBy, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	return p, err
}

func (r *PGRepository) Insert(ctx context.Context, p Payment) (Payment, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO payments
(user_installment_id, project_id, user_id, amount, paid_at, method, reference, note, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id`,
		p.UserInstallmentID, p.ProjectID, p.UserID, shared.FormatAmount(p.Amount), p.PaidAt, p.Method, p.Reference, p.Note, p.CreatedBy,
	).Scan(&id)
	if err != nil {
		return Payment{}, fmt.Errorf("payments: insert: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Payment, error) {
	return scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+paymentColumns+paymentFrom+` WHERE pm.id = $1`, id))
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Payment, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProjectID > 0 {
		add("pm.project_id = $%d", filter.ProjectID)
	}
	if filter.UserID > 0 {
		add("pm.user_id = $%d", filter.UserID)
	}
	if filter.InstallmentID > 0 {
		add("pm.user_installment_id = $%d", filter.InstallmentID)
	}
	if filter.From != nil {
		add("pm.paid_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("pm.paid_at <= $%d", *filter.To)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+paymentFrom+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + paymentColumns + paymentFrom + clause + ` ORDER BY pm.paid_at DESC, pm.id DESC`
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
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) SetJournalEntry(ctx context.Context, id, entryID int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE payments SET journal_entry_id = $2 WHERE id = $1`, id, entryID)
	return err
}
