package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/estatebook/estatebook/internal/accounting/ledger"
	"github.com/estatebook/estatebook/internal/platform/db"
	"github.com/estatebook/estatebook/internal/shared"
)

// Repository persists accounting entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	ListAccounts(ctx context.Context) ([]Account, error)
	AccountsByCodes(ctx context.Context, codes []string) (map[string]Account, error)
	AccountsByIDs(ctx context.Context, ids []int64) (map[int64]Account, error)
	UpsertAccount(ctx context.Context, a Account) (Account, bool, error)
	UpdateAccount(ctx context.Context, id int64, name string, active bool) error

	InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error
	LinkedEntryID(ctx context.Context, module string, ref uuid.UUID) (int64, error)
	GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, error)
	ListJournalEntries(ctx context.Context, filter JournalFilter, limit, offset int) ([]JournalEntry, int, error)

	ListMappings(ctx context.Context) ([]AccountMapping, error)
	GetMapping(ctx context.Context, module, key string) (AccountMapping, error)
	UpsertMapping(ctx context.Context, module, key string, accountID int64) error

	LedgerRows(ctx context.Context, prefix string, filter JournalFilter) ([]ledger.Row, error)
	OpeningBalance(ctx context.Context, prefix string, before time.Time) (ledger.Opening, error)
	AccountBalances(ctx context.Context, filter JournalFilter) ([]ledger.Balance, error)
	UnbalancedEntries(ctx context.Context) ([]IntegrityIssue, error)
}

// IntegrityIssue describes a posted entry whose sides differ.
type IntegrityIssue struct {
	EntryID int64
	Number  int64
	Debit   float64
	Credit  float64
}

type txRepository struct {
	q db.Querier
}

// ErrSourceConflict indicates the source link already exists.
var ErrSourceConflict = errors.New("accounting: source link conflict")

// WithTx executes fn within repeatable-read transaction, joining one the
// caller already opened.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
}

const accountColumns = `id, code, name, level, parent_id, type, nature, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Level, &a.ParentID, &a.Type, &a.Nature, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) queryAccounts(ctx context.Context, sql string, args ...any) ([]Account, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	return r.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
}

func (r *txRepository) AccountsByCodes(ctx context.Context, codes []string) (map[string]Account, error) {
	accounts, err := r.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code = ANY($1)`, codes)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Account, len(accounts))
	for _, a := range accounts {
		out[a.Code] = a
	}
	return out, nil
}

func (r *txRepository) AccountsByIDs(ctx context.Context, ids []int64) (map[int64]Account, error) {
	accounts, err := r.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Account, len(accounts))
	for _, a := range accounts {
		out[a.ID] = a
	}
	return out, nil
}

// UpsertAccount inserts the account or returns the existing row with the
// same code. The bool reports whether a row was created.
func (r *txRepository) UpsertAccount(ctx context.Context, a Account) (Account, bool, error) {
	var inserted bool
	row := r.q.QueryRow(ctx, `INSERT INTO accounts (code, name, level, parent_id, type, nature, is_active)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (code) DO UPDATE SET code = EXCLUDED.code
RETURNING `+accountColumns+`, (xmax = 0)`, a.Code, a.Name, a.Level, a.ParentID, a.Type, a.Nature, a.IsActive)
	var out Account
	err := row.Scan(&out.ID, &out.Code, &out.Name, &out.Level, &out.ParentID, &out.Type, &out.Nature, &out.IsActive, &out.CreatedAt, &out.UpdatedAt, &inserted)
	if err != nil {
		return Account{}, false, err
	}
	return out, inserted, nil
}

func (r *txRepository) UpdateAccount(ctx context.Context, id int64, name string, active bool) error {
	cmd, err := r.q.Exec(ctx, `UPDATE accounts SET name=$2, is_active=$3, updated_at=NOW() WHERE id=$1`, id, name, active)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	row := r.q.QueryRow(ctx, `INSERT INTO journal_entries (date, source_module, source_id, memo, posted_by, status)
VALUES ($1,$2,$3,$4,$5,'POSTED') RETURNING id, number, posted_at, created_at, updated_at`, in.Date, in.SourceModule, in.SourceID, in.Memo, nullInt(in.PostedBy))
	entry := JournalEntry{
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		PostedBy:     in.PostedBy,
		Status:       JournalStatusPosted,
	}
	if err := row.Scan(&entry.ID, &entry.Number, &entry.PostedAt, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, line := range lines {
		if _, err := r.q.Exec(ctx, `INSERT INTO journal_lines (je_id, account_id, description, debit, credit)
VALUES ($1,$2,$3,$4,$5)`, entryID, line.AccountID, line.Description, shared.FormatAmount(line.Debit), shared.FormatAmount(line.Credit)); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) LinkSource(ctx context.Context, module string, ref uuid.UUID, entryID int64) error {
	_, err := r.q.Exec(ctx, `INSERT INTO source_links (module, ref_id, je_id) VALUES ($1,$2,$3)`, module, ref, entryID)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_source_links") {
			return ErrSourceConflict
		}
		return err
	}
	return nil
}

func (r *txRepository) LinkedEntryID(ctx context.Context, module string, ref uuid.UUID) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx, `SELECT je_id FROM source_links WHERE module=$1 AND ref_id=$2`, module, ref).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return id, err
}

const entryColumns = `id, number, date, source_module, source_id, memo, COALESCE(posted_by, 0), posted_at, status, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.SourceModule, &e.SourceID, &e.Memo, &e.PostedBy, &e.PostedAt, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, entryID int64) (JournalEntry, error) {
	entry, err := scanEntry(r.q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, entryID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := r.q.Query(ctx, `SELECT l.id, l.je_id, l.account_id, a.code, a.name, l.description, l.debit, l.credit
FROM journal_lines l JOIN accounts a ON a.id = l.account_id
WHERE l.je_id=$1 ORDER BY l.id ASC`, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line JournalLine
		if err := rows.Scan(&line.ID, &line.JournalID, &line.AccountID, &line.AccountCode, &line.AccountName, &line.Description, &line.Debit, &line.Credit); err != nil {
			return JournalEntry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func dateWhere(filter JournalFilter, column string, args []any) ([]string, []any) {
	var where []string
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where = append(where, fmt.Sprintf("%s >= $%d", column, len(args)))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where = append(where, fmt.Sprintf("%s <= $%d", column, len(args)))
	}
	return where, args
}

func (r *txRepository) ListJournalEntries(ctx context.Context, filter JournalFilter, limit, offset int) ([]JournalEntry, int, error) {
	where, args := dateWhere(filter, "date", nil)
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}
	var total int
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.q.Query(ctx, fmt.Sprintf(`SELECT %s FROM journal_entries%s ORDER BY date DESC, number DESC LIMIT $%d OFFSET $%d`,
		entryColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (r *txRepository) ListMappings(ctx context.Context) ([]AccountMapping, error) {
	rows, err := r.q.Query(ctx, `SELECT m.module, m.key, m.account_id, a.code, a.name, m.updated_at
FROM account_mappings m JOIN accounts a ON a.id = m.account_id ORDER BY m.module, m.key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountMapping
	for rows.Next() {
		var m AccountMapping
		if err := rows.Scan(&m.Module, &m.Key, &m.AccountID, &m.AccountCode, &m.AccountName, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMapping resolves an account mapping for the specified key.
func (r *txRepository) GetMapping(ctx context.Context, module, key string) (AccountMapping, error) {
	if module == "" || key == "" {
		return AccountMapping{}, errors.New("accounting: module and key required")
	}
	var m AccountMapping
	err := r.q.QueryRow(ctx, `SELECT m.module, m.key, m.account_id, a.code, a.name, m.updated_at
FROM account_mappings m JOIN accounts a ON a.id = m.account_id WHERE m.module=$1 AND m.key=$2`,
		strings.ToUpper(module), strings.ToUpper(key)).
		Scan(&m.Module, &m.Key, &m.AccountID, &m.AccountCode, &m.AccountName, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AccountMapping{}, fmt.Errorf("%w: %s/%s", ErrMappingNotFound, module, key)
		}
		return AccountMapping{}, err
	}
	return m, nil
}

func (r *txRepository) UpsertMapping(ctx context.Context, module, key string, accountID int64) error {
	_, err := r.q.Exec(ctx, `INSERT INTO account_mappings (module, key, account_id) VALUES ($1,$2,$3)
ON CONFLICT (module, key) DO UPDATE SET account_id = EXCLUDED.account_id, updated_at = NOW()`,
		strings.ToUpper(module), strings.ToUpper(key), accountID)
	return err
}

func (r *txRepository) LedgerRows(ctx context.Context, prefix string, filter JournalFilter) ([]ledger.Row, error) {
	scope, arg := codeScope(prefix)
	where, args := dateWhere(filter, "e.date", []any{arg})
	where = append([]string{scope, "e.status = 'POSTED'"}, where...)
	rows, err := r.q.Query(ctx, `SELECT e.id, e.number, e.date, e.memo, e.source_module, l.id, a.code, a.name, l.description, l.debit, l.credit
FROM journal_lines l
JOIN journal_entries e ON e.id = l.je_id
JOIN accounts a ON a.id = l.account_id
WHERE `+strings.Join(where, " AND ")+`
ORDER BY e.date, e.number, l.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Row
	for rows.Next() {
		var row ledger.Row
		if err := rows.Scan(&row.EntryID, &row.Number, &row.Date, &row.Memo, &row.SourceModule, &row.LineID,
			&row.AccountCode, &row.AccountName, &row.Description, &row.Debit, &row.Credit); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *txRepository) OpeningBalance(ctx context.Context, prefix string, before time.Time) (ledger.Opening, error) {
	var open ledger.Opening
	if before.IsZero() {
		return open, nil
	}
	scope, arg := codeScope(prefix)
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.je_id
JOIN accounts a ON a.id = l.account_id
WHERE `+scope+` AND e.status = 'POSTED' AND e.date < $2`, arg, before).Scan(&open.Debit, &open.Credit)
	return open, err
}

// codeScope filters a.code on $1 the way ledger.Covers does.
func codeScope(prefix string) (string, any) {
	prefix = strings.TrimSpace(prefix)
	if ledger.IsDetailCode(prefix) {
		return "a.code = $1", prefix
	}
	return "a.code LIKE $1", prefix + "%"
}

// AccountBalances returns per-account opening and period activity. Accounts
// without any posting are left out.
func (r *txRepository) AccountBalances(ctx context.Context, filter JournalFilter) ([]ledger.Balance, error) {
	from := filter.From
	to := filter.To
	if to.IsZero() {
		to = time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	}
	rows, err := r.q.Query(ctx, `SELECT a.code, a.name, a.type, a.nature,
	COALESCE(SUM(l.debit) FILTER (WHERE e.date < $1), 0),
	COALESCE(SUM(l.credit) FILTER (WHERE e.date < $1), 0),
	COALESCE(SUM(l.debit) FILTER (WHERE e.date >= $1 AND e.date <= $2), 0),
	COALESCE(SUM(l.credit) FILTER (WHERE e.date >= $1 AND e.date <= $2), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.je_id
JOIN accounts a ON a.id = l.account_id
WHERE e.status = 'POSTED' AND e.date <= $2
GROUP BY a.code, a.name, a.type, a.nature
ORDER BY a.code`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Balance
	for rows.Next() {
		var b ledger.Balance
		if err := rows.Scan(&b.Code, &b.Name, &b.Type, &b.Nature, &b.OpeningDebit, &b.OpeningCredit, &b.Debit, &b.Credit); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *txRepository) UnbalancedEntries(ctx context.Context) ([]IntegrityIssue, error) {
	rows, err := r.q.Query(ctx, `SELECT e.id, e.number, COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_entries e
LEFT JOIN journal_lines l ON l.je_id = e.id
WHERE e.status = 'POSTED'
GROUP BY e.id, e.number
HAVING COALESCE(SUM(l.debit), 0) <> COALESCE(SUM(l.credit), 0) OR COUNT(l.id) < 2
ORDER BY e.number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []IntegrityIssue
	for rows.Next() {
		var issue IntegrityIssue
		if err := rows.Scan(&issue.EntryID, &issue.Number, &issue.Debit, &issue.Credit); err != nil {
			return nil, err
		}
		out = append(out, issue)
	}
	return out, rows.Err()
}

func nullInt(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
