package documents

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatebook/estatebook/internal/platform/db"
)

// Repository persists document metadata.
type Repository interface {
	Insert(ctx context.Context, d Document) (Document, error)
	Get(ctx context.Context, id int64) (Document, error)
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
	Delete(ctx context.Context, id int64) error
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

const documentColumns = `d.id, d.project_id, COALESCE(p.name, ''), d.user_id, COALESCE(u.name, ''), d.title, d.file_name,
	d.stored_name, d.mime_type, d.size_bytes, d.uploaded_by, d.created_at`

const documentFrom = ` FROM documents d
LEFT JOIN projects p ON p.id = d.project_id
LEFT JOIN users u ON u.id = d.user_id`

func scanDocument(row pgx.Row) (Document, error) {
	var d Document
	err := row.Scan(&d.ID, &d.ProjectID, &d.ProjectName, &d.UserID, &d.UserName, &d.Title, &d.FileName,
		&d.StoredName, &d.MimeType, &d.SizeBytes, &d.UploadedBy, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return d, err
}

func (r *PGRepository) Insert(ctx context.Context, d Document) (Document, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO documents
(project_id, user_id, title, file_name, stored_name, mime_type, size_bytes, uploaded_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`,
		d.ProjectID, d.UserID, d.Title, d.FileName, d.StoredName, d.MimeType, d.SizeBytes, d.UploadedBy).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("documents: insert: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Document, error) {
	return scanDocument(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+documentColumns+documentFrom+` WHERE d.id = $1`, id))
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	var (
		where []string
		args  []any
	)
	if filter.ProjectID > 0 {
		args = append(args, filter.ProjectID)
		where = append(where, fmt.Sprintf("d.project_id = $%d", len(args)))
	}
	if filter.UserID > 0 {
		args = append(args, filter.UserID)
		where = append(where, fmt.Sprintf("d.user_id = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*)`+documentFrom+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	query := `SELECT ` + documentColumns + documentFrom + clause + ` ORDER BY d.created_at DESC, d.id DESC`
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
	var out []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) Delete(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
