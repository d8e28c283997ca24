package installments

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

// Repository persists definitions and user installments.
type Repository interface {
	CreateDefinition(ctx context.Context, d Definition) (Definition, error)
	GetDefinition(ctx context.Context, id int64) (Definition, error)
	LockDefinition(ctx context.Context, id int64) (Definition, error)
	ListDefinitions(ctx context.Context, projectID int64) ([]Definition, error)

	ListInstallments(ctx context.Context, filter ListFilter) ([]UserInstallment, int, error)
	GetInstallment(ctx context.Context, id int64) (UserInstallment, error)
	LockInstallment(ctx context.Context, id int64) (UserInstallment, error)
	// InsertInstallment returns false when the member already has an
	// installment for the definition.
	InsertInstallment(ctx context.Context, u UserInstallment) (UserInstallment, bool, error)
	BilledUsers(ctx context.Context, definitionID int64) (map[int64]bool, error)
	SetJournalEntry(ctx context.Context, id, entryID int64) error
	UpdatePaid(ctx context.Context, id int64, paid float64, status Status, paidAt *time.Time) error
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

const definitionColumns = `d.id, d.project_id, p.name, d.title, d.due_date, d.amount, d.created_by, d.created_at,
	(SELECT COUNT(*) FROM user_installments ui WHERE ui.definition_id = d.id)`

func scanDefinition(row pgx.Row) (Definition, error) {
	var d Definition
	err := row.Scan(&d.ID, &d.ProjectID, &d.ProjectName, &d.Title, &d.DueDate, &d.Amount, &d.CreatedBy, &d.CreatedAt, &d.Generated)
	if errors.Is(err, pgx.ErrNoRows) {
		return Definition{}, ErrNotFound
	}
	return d, err
}

func (r *PGRepository) CreateDefinition(ctx context.Context, d Definition) (Definition, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO installment_definitions (project_id, title, due_date, amount, created_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, d.ProjectID, d.Title, d.DueDate, shared.FormatAmount(d.Amount), d.CreatedBy).Scan(&id)
	if db.IsForeignKeyViolation(err) {
		return Definition{}, ErrNotFound
	}
	if err != nil {
		return Definition{}, err
	}
	return r.GetDefinition(ctx, id)
}

func (r *PGRepository) GetDefinition(ctx context.Context, id int64) (Definition, error) {
	return scanDefinition(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+definitionColumns+`
FROM installment_definitions d JOIN projects p ON p.id = d.project_id WHERE d.id = $1`, id))
}

func (r *PGRepository) LockDefinition(ctx context.Context, id int64) (Definition, error) {
	return scanDefinition(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+definitionColumns+`
FROM installment_definitions d JOIN projects p ON p.id = d.project_id WHERE d.id = $1 FOR UPDATE OF d`, id))
}

func (r *PGRepository) ListDefinitions(ctx context.Context, projectID int64) ([]Definition, error) {
	query := `SELECT ` + definitionColumns + ` FROM installment_definitions d JOIN projects p ON p.id = d.project_id`
	var args []any
	if projectID > 0 {
		query += ` WHERE d.project_id = $1`
		args = append(args, projectID)
	}
	rows, err := db.Conn(ctx, r.pool).Query(ctx, query+` ORDER BY d.due_date, d.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

const installmentColumns = `ui.id, ui.definition_id, ui.project_id, p.name, ui.user_id, u.name, u.email, ui.title,
	ui.due_date, ui.share_amount, ui.paid_amount, ui.status, ui.paid_at, ui.journal_entry_id, ui.created_at`

const installmentFrom = ` FROM user_installments ui
JOIN projects p ON p.id = ui.project_id
JOIN users u ON u.id = ui.user_id`

func scanInstallment(row pgx.Row) (UserInstallment, error) {
	var u UserInstallment
	err := row.Scan(&u.ID, &u.DefinitionID, &u.ProjectID, &u.ProjectName, &u.UserID, &u.UserName, &u.UserEmail, &u.Title,
		&u.DueDate, &u.ShareAmount, &u.PaidAmount, &u.Status, &u.PaidAt, &u.JournalEntryID, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserInstallment{}, ErrNotFound
	}
	return u, err
}

func (r *PGRepository) ListInstallments(ctx context.Context, filter ListFilter) ([]UserInstallment, int, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProjectID > 0 {
		add("ui.project_id = $%d", filter.ProjectID)
	}
	if filter.UserID > 0 {
		add("ui.user_id = $%d", filter.UserID)
	}
	if filter.DefinitionID > 0 {
		add("ui.definition_id = $%d", filter.DefinitionID)
	}
	if filter.Status != "" {
		add("ui.status = $%d", filter.Status)
	}
	if filter.DueFrom != nil {
		add("ui.due_date >= $%d", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		add("ui.due_date <= $%d", *filter.DueTo)
	}
	if filter.OverdueAsOf != nil {
		add("ui.due_date < $%d", *filter.OverdueAsOf)
		where = append(where, "ui.status <> 'PAID'")
	}
	if filter.Unpaid {
		where = append(where, "ui.status <> 'PAID'")
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+installmentFrom+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + installmentColumns + installmentFrom + clause + ` ORDER BY ui.due_date, p.name, u.name, ui.id`
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
	var out []UserInstallment
	for rows.Next() {
		u, err := scanInstallment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) GetInstallment(ctx context.Context, id int64) (UserInstallment, error) {
	return scanInstallment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+installmentColumns+installmentFrom+` WHERE ui.id = $1`, id))
}

func (r *PGRepository) LockInstallment(ctx context.Context, id int64) (UserInstallment, error) {
	return scanInstallment(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+installmentColumns+installmentFrom+` WHERE ui.id = $1 FOR UPDATE OF ui`, id))
}

func (r *PGRepository) InsertInstallment(ctx context.Context, u UserInstallment) (UserInstallment, bool, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO user_installments
(definition_id, project_id, user_id, title, due_date, share_amount, paid_amount, status)
VALUES ($1,$2,$3,$4,$5,$6,0,'PENDING')
ON CONFLICT ON CONSTRAINT uq_user_installments_definition_user DO NOTHING
RETURNING id`, u.DefinitionID, u.ProjectID, u.UserID, u.Title, u.DueDate, shared.FormatAmount(u.ShareAmount)).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserInstallment{}, false, nil
	}
	if err != nil {
		return UserInstallment{}, false, err
	}
	created, err := r.GetInstallment(ctx, id)
	return created, err == nil, err
}

func (r *PGRepository) BilledUsers(ctx context.Context, definitionID int64) (map[int64]bool, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT user_id FROM user_installments WHERE definition_id = $1`, definitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64]bool{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *PGRepository) SetJournalEntry(ctx context.Context, id, entryID int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE user_installments SET journal_entry_id = $2, updated_at = NOW() WHERE id = $1`, id, entryID)
	return err
}

func (r *PGRepository) UpdatePaid(ctx context.Context, id int64, paid float64, status Status, paidAt *time.Time) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE user_installments
SET paid_amount = $2, status = $3, paid_at = $4, updated_at = NOW() WHERE id = $1`, id, shared.FormatAmount(paid), status, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
