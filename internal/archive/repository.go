package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatebook/estatebook/internal/platform/db"
)

// Repository moves rows between live and archived_* tables.
type Repository interface {
	Label(ctx context.Context, kind Kind, subjectID int64) (string, error)
	InsertBatch(ctx context.Context, b Batch) error
	SetRowCount(ctx context.Context, id uuid.UUID, rows int) error
	Move(ctx context.Context, batchID uuid.UUID, step Step, subjectID int64) (int64, error)
	Restore(ctx context.Context, batchID uuid.UUID, table string) (int64, error)
	LockBatch(ctx context.Context, id uuid.UUID) (Batch, error)
	GetBatch(ctx context.Context, id uuid.UUID) (Batch, error)
	MarkRestored(ctx context.Context, id uuid.UUID, actorID int64) error
	ListBatches(ctx context.Context, filter ListFilter) ([]Batch, int, error)
	CountArchived(ctx context.Context, batchID uuid.UUID, table string) (int64, error)
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

func archivedTable(table string) string {
	return pgx.Identifier{"archived_" + table}.Sanitize()
}

func (r *PGRepository) Label(ctx context.Context, kind Kind, subjectID int64) (string, error) {
	var query string
	switch kind {
	case KindProject:
		query = `SELECT code || ' ' || name FROM projects WHERE id = $1`
	case KindUser:
		query = `SELECT name || ' <' || email || '>' FROM users WHERE id = $1`
	default:
		return "", fmt.Errorf("archive: unknown kind %q", kind)
	}
	var label string
	err := db.Conn(ctx, r.pool).QueryRow(ctx, query+` FOR UPDATE`, subjectID).Scan(&label)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return label, err
}

func (r *PGRepository) InsertBatch(ctx context.Context, b Batch) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO archive_batches (id, kind, subject_id, label, archived_by, archived_at)
VALUES ($1,$2,$3,$4,$5,$6)`, b.ID, string(b.Kind), b.SubjectID, b.Label, b.ArchivedBy, b.ArchivedAt)
	return err
}

func (r *PGRepository) SetRowCount(ctx context.Context, id uuid.UUID, rows int) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE archive_batches SET row_count = $2 WHERE id = $1`, id, rows)
	return err
}

// Move copies the matching rows into the archived twin, tagged with the
// batch, and deletes them from the live table.
func (r *PGRepository) Move(ctx context.Context, batchID uuid.UUID, step Step, subjectID int64) (int64, error) {
	live := pgx.Identifier{step.Table}.Sanitize()
	column := pgx.Identifier{step.Column}.Sanitize()
	conn := db.Conn(ctx, r.pool)
	copied, err := conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s SELECT t.*, $1, NOW() FROM %s t WHERE t.%s = $2`,
		archivedTable(step.Table), live, column), batchID, subjectID)
	if err != nil {
		return 0, fmt.Errorf("archive: copy %s: %w", step.Table, err)
	}
	deleted, err := conn.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE %s = $1`, live, column), subjectID)
	if err != nil {
		return 0, fmt.Errorf("archive: delete %s: %w", step.Table, err)
	}
	if copied.RowsAffected() != deleted.RowsAffected() {
		return 0, fmt.Errorf("archive: %s copied %d rows but deleted %d", step.Table, copied.RowsAffected(), deleted.RowsAffected())
	}
	return deleted.RowsAffected(), nil
}

// Restore copies the batch rows of table back and drops the archived copies.
// The live column list drives the copy so the batch columns are left out.
func (r *PGRepository) Restore(ctx context.Context, batchID uuid.UUID, table string) (int64, error) {
	conn := db.Conn(ctx, r.pool)
	rows, err := conn.Query(ctx, `SELECT column_name FROM information_schema.columns
WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`, table)
	if err != nil {
		return 0, err
	}
	columns, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return 0, err
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("archive: table %s has no columns", table)
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	list := strings.Join(quoted, ", ")
	tag, err := conn.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (%s) SELECT %s FROM %s WHERE archive_batch = $1`,
		pgx.Identifier{table}.Sanitize(), list, list, archivedTable(table)), batchID)
	if err != nil {
		if db.IsUniqueViolation(err, "") || db.IsForeignKeyViolation(err) {
			return 0, fmt.Errorf("%w: %s", ErrRestoreConflict, table)
		}
		return 0, fmt.Errorf("archive: restore %s: %w", table, err)
	}
	if _, err := conn.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE archive_batch = $1`, archivedTable(table)), batchID); err != nil {
		return 0, fmt.Errorf("archive: drop archived %s: %w", table, err)
	}
	return tag.RowsAffected(), nil
}

const batchColumns = `id, kind, subject_id, label, row_count, archived_by, archived_at, restored_by, restored_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var (
		b    Batch
		kind string
	)
	err := row.Scan(&b.ID, &kind, &b.SubjectID, &b.Label, &b.RowCount, &b.ArchivedBy, &b.ArchivedAt, &b.RestoredBy, &b.RestoredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Batch{}, ErrNotFound
	}
	b.Kind = Kind(kind)
	return b, err
}

func (r *PGRepository) LockBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	return scanBatch(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+batchColumns+` FROM archive_batches WHERE id = $1 FOR UPDATE`, id))
}

func (r *PGRepository) GetBatch(ctx context.Context, id uuid.UUID) (Batch, error) {
	b, err := scanBatch(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+batchColumns+` FROM archive_batches WHERE id = $1`, id))
	if err != nil {
		return Batch{}, err
	}
	if b.Restored() {
		return b, nil
	}
	for _, step := range ScopeFor(b.Kind) {
		n, err := r.CountArchived(ctx, id, step.Table)
		if err != nil {
			return Batch{}, err
		}
		if n > 0 {
			b.Tables = append(b.Tables, TableCount{Table: step.Table, Rows: n})
		}
	}
	return b, nil
}

func (r *PGRepository) CountArchived(ctx context.Context, batchID uuid.UUID, table string) (int64, error) {
	var n int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE archive_batch = $1`, archivedTable(table)), batchID).Scan(&n)
	return n, err
}

func (r *PGRepository) MarkRestored(ctx context.Context, id uuid.UUID, actorID int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE archive_batches SET restored_by = $2, restored_at = NOW()
WHERE id = $1 AND restored_at IS NULL`, id, actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyRestored
	}
	return nil
}

func (r *PGRepository) ListBatches(ctx context.Context, filter ListFilter) ([]Batch, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if filter.Restored != nil {
		if *filter.Restored {
			where = append(where, "restored_at IS NOT NULL")
		} else {
			where = append(where, "restored_at IS NULL")
		}
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM archive_batches`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + batchColumns + ` FROM archive_batches` + clause + ` ORDER BY archived_at DESC`
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
	var out []Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, b)
	}
	return out, total, rows.Err()
}
