package projects

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

// Repository persists projects, units and memberships.
type Repository interface {
	List(ctx context.Context, filter ListFilter) ([]Project, int, error)
	Get(ctx context.Context, id int64) (Project, error)
	// Lock loads the project and holds a row lock until the transaction ends.
	Lock(ctx context.Context, id int64) (Project, error)
	Create(ctx context.Context, p Project) (Project, error)
	Update(ctx context.Context, p Project) (Project, error)

	ListUnits(ctx context.Context, projectID int64) ([]Unit, error)
	GetUnit(ctx context.Context, id int64) (Unit, error)
	CreateUnit(ctx context.Context, u Unit) (Unit, error)

	ListMembers(ctx context.Context, projectID int64) ([]Member, error)
	UpsertMember(ctx context.Context, m Member) error
	DeleteMember(ctx context.Context, projectID, userID int64) error
	Outstanding(ctx context.Context, projectID, userID int64) (float64, error)
	Memberships(ctx context.Context, userID int64) ([]Membership, error)
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

const projectColumns = `p.id, p.code, p.name, p.location, p.description, p.status, p.start_date, p.end_date,
	p.budget, p.penalty_rate, p.grace_days, p.created_at, p.updated_at`

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.Location, &p.Description, &p.Status, &p.StartDate, &p.EndDate,
		&p.Budget, &p.PenaltyRate, &p.GraceDays, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Project{}, ErrNotFound
	}
	return p, err
}

func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Project, int, error) {
	var (
		where []string
		args  []any
	)
	if s := strings.TrimSpace(filter.Search); s != "" {
		args = append(args, "%"+strings.ToLower(s)+"%")
		where = append(where, fmt.Sprintf("(lower(p.name) LIKE $%d OR lower(p.code) LIKE $%d OR lower(p.location) LIKE $%d)", len(args), len(args), len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("p.status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	conn := db.Conn(ctx, r.pool)
	var total int
	if err := conn.QueryRow(ctx, `SELECT COUNT(*) FROM projects p`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	perPage, offset := pageWindow(filter.Page, filter.PerPage)
	args = append(args, perPage, offset)
	rows, err := conn.Query(ctx, fmt.Sprintf(`SELECT %s FROM projects p%s ORDER BY p.start_date DESC, p.id DESC LIMIT $%d OFFSET $%d`,
		projectColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Project, error) {
	return scanProject(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1`, id))
}

func (r *PGRepository) Lock(ctx context.Context, id int64) (Project, error) {
	return scanProject(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+projectColumns+` FROM projects p WHERE p.id = $1 FOR UPDATE`, id))
}

func (r *PGRepository) Create(ctx context.Context, p Project) (Project, error) {
	var id int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO projects
(code, name, location, description, status, start_date, end_date, budget, penalty_rate, grace_days)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		p.Code, p.Name, p.Location, p.Description, p.Status, p.StartDate, p.EndDate,
		shared.FormatAmount(p.Budget), formatRate(p.PenaltyRate), p.GraceDays).Scan(&id)
	if db.IsUniqueViolation(err, "uq_projects_code") {
		return Project{}, ErrDuplicateCode
	}
	if err != nil {
		return Project{}, err
	}
	return r.Get(ctx, id)
}

func (r *PGRepository) Update(ctx context.Context, p Project) (Project, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `UPDATE projects
SET code=$2, name=$3, location=$4, description=$5, status=$6, start_date=$7, end_date=$8,
    budget=$9, penalty_rate=$10, grace_days=$11, updated_at=NOW()
WHERE id=$1`,
		p.ID, p.Code, p.Name, p.Location, p.Description, p.Status, p.StartDate, p.EndDate,
		shared.FormatAmount(p.Budget), formatRate(p.PenaltyRate), p.GraceDays)
	if db.IsUniqueViolation(err, "uq_projects_code") {
		return Project{}, ErrDuplicateCode
	}
	if err != nil {
		return Project{}, err
	}
	if tag.RowsAffected() == 0 {
		return Project{}, ErrNotFound
	}
	return r.Get(ctx, p.ID)
}

const unitColumns = `u.id, u.project_id, u.number, u.floor, u.area, u.unit_type, u.price,
	COALESCE(m.user_id, 0), COALESCE(usr.name, '')`

const unitFrom = ` FROM units u
LEFT JOIN project_members m ON m.unit_id = u.id
LEFT JOIN users usr ON usr.id = m.user_id`

func scanUnit(row pgx.Row) (Unit, error) {
	var u Unit
	err := row.Scan(&u.ID, &u.ProjectID, &u.Number, &u.Floor, &u.Area, &u.Type, &u.Price, &u.OwnerID, &u.OwnerName)
	if errors.Is(err, pgx.ErrNoRows) {
		return Unit{}, ErrNotFound
	}
	return u, err
}

func (r *PGRepository) ListUnits(ctx context.Context, projectID int64) ([]Unit, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+unitColumns+unitFrom+`
WHERE u.project_id = $1 ORDER BY u.floor, u.number`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PGRepository) GetUnit(ctx context.Context, id int64) (Unit, error) {
	return scanUnit(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+unitColumns+unitFrom+` WHERE u.id = $1`, id))
}

func (r *PGRepository) CreateUnit(ctx context.Context, u Unit) (Unit, error) {
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `INSERT INTO units (project_id, number, floor, area, unit_type, price)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		u.ProjectID, u.Number, u.Floor, shared.FormatAmount(u.Area), u.Type, shared.FormatAmount(u.Price)).Scan(&u.ID)
	if db.IsUniqueViolation(err, "uq_units_project_number") {
		return Unit{}, ErrDuplicateUnit
	}
	if db.IsForeignKeyViolation(err) {
		return Unit{}, ErrNotFound
	}
	return u, err
}

func (r *PGRepository) ListMembers(ctx context.Context, projectID int64) ([]Member, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT m.project_id, m.user_id, usr.name, usr.email, m.share_percent,
	m.unit_id, COALESCE(u.number, ''), m.joined_at
FROM project_members m
JOIN users usr ON usr.id = m.user_id
LEFT JOIN units u ON u.id = m.unit_id
WHERE m.project_id = $1
ORDER BY m.joined_at, m.user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.ProjectID, &m.UserID, &m.UserName, &m.UserEmail, &m.SharePercent, &m.UnitID, &m.UnitNumber, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PGRepository) UpsertMember(ctx context.Context, m Member) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `INSERT INTO project_members (project_id, user_id, share_percent, unit_id)
VALUES ($1,$2,$3,$4)
ON CONFLICT (project_id, user_id) DO UPDATE SET share_percent = EXCLUDED.share_percent, unit_id = EXCLUDED.unit_id`,
		m.ProjectID, m.UserID, formatRate(m.SharePercent), m.UnitID)
	if db.IsUniqueViolation(err, "uq_project_members_unit") {
		return ErrUnitTaken
	}
	return err
}

func (r *PGRepository) DeleteMember(ctx context.Context, projectID, userID int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepository) Outstanding(ctx context.Context, projectID, userID int64) (float64, error) {
	var total float64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT COALESCE(SUM(share_amount - paid_amount), 0)
FROM user_installments WHERE project_id = $1 AND user_id = $2 AND status <> 'PAID'`, projectID, userID).Scan(&total)
	return total, err
}

func (r *PGRepository) Memberships(ctx context.Context, userID int64) ([]Membership, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `SELECT `+projectColumns+`, m.share_percent, COALESCE(u.number, ''), m.joined_at
FROM project_members m
JOIN projects p ON p.id = m.project_id
LEFT JOIN units u ON u.id = m.unit_id
WHERE m.user_id = $1
ORDER BY p.start_date, p.id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Membership
	for rows.Next() {
		var (
			ms Membership
			p  = &ms.Project
		)
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Location, &p.Description, &p.Status, &p.StartDate, &p.EndDate,
			&p.Budget, &p.PenaltyRate, &p.GraceDays, &p.CreatedAt, &p.UpdatedAt,
			&ms.SharePercent, &ms.UnitNumber, &ms.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, ms)
	}
	return out, rows.Err()
}

func formatRate(v float64) string {
	return fmt.Sprintf("%.6f", v)
}

func pageWindow(page, perPage int) (int, int) {
	if perPage <= 0 {
		perPage = shared.DefaultPerPage
	}
	if page <= 0 {
		page = 1
	}
	return perPage, (page - 1) * perPage
}
