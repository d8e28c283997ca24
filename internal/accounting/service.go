package accounting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/accounting/ledger"
	"github.com/estatebook/estatebook/internal/accounting/reports"
	"github.com/estatebook/estatebook/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// PostingObserver is told about every journal entry committed.
type PostingObserver interface {
	JournalPosted(module string)
}

// Service coordinates the chart of accounts, postings and the books.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	observer PostingObserver
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithObserver registers a posting observer, typically the metrics registry.
func (s *Service) WithObserver(o PostingObserver) *Service {
	s.observer = o
	return s
}

// PostJournal validates and persists a new journal entry. Posting the same
// (module, source id) twice returns ErrSourceAlreadyLinked.
func (s *Service) PostJournal(ctx context.Context, input PostingInput) (JournalEntry, error) {
	if err := input.Validate(); err != nil {
		return JournalEntry{}, err
	}
	input.Date = shared.DateOnly(input.Date)
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if existing, err := tx.LinkedEntryID(ctx, input.SourceModule, input.SourceID); err != nil {
			return err
		} else if existing != 0 {
			return ErrSourceAlreadyLinked
		}
		lines, err := resolveLines(ctx, tx, input.Lines)
		if err != nil {
			return err
		}
		input.Lines = lines
		inserted, err := tx.InsertJournalEntry(ctx, input)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, input.SourceModule, input.SourceID, inserted.ID); err != nil {
			if errors.Is(err, ErrSourceConflict) {
				return ErrSourceAlreadyLinked
			}
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, input.Lines)
		entry = inserted
		return s.record(ctx, input.PostedBy, "journal.post", entry.ID, map[string]any{
			"number":        entry.Number,
			"source_module": input.SourceModule,
			"source_id":     input.SourceID.String(),
		})
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.observer != nil {
		s.observer.JournalPosted(input.SourceModule)
	}
	return entry, nil
}

// resolveLines fills account ids from codes and refuses accounts that are
// not active detail accounts.
func resolveLines(ctx context.Context, tx TxRepository, lines []PostingLineInput) ([]PostingLineInput, error) {
	var codes []string
	var ids []int64
	for _, l := range lines {
		if l.AccountID != 0 {
			ids = append(ids, l.AccountID)
		} else {
			codes = append(codes, strings.TrimSpace(l.AccountCode))
		}
	}
	byID := map[int64]Account{}
	byCode := map[string]Account{}
	var err error
	if len(ids) > 0 {
		if byID, err = tx.AccountsByIDs(ctx, ids); err != nil {
			return nil, err
		}
	}
	if len(codes) > 0 {
		if byCode, err = tx.AccountsByCodes(ctx, codes); err != nil {
			return nil, err
		}
	}
	out := make([]PostingLineInput, len(lines))
	for i, l := range lines {
		var acc Account
		var ok bool
		if l.AccountID != 0 {
			acc, ok = byID[l.AccountID]
		} else {
			acc, ok = byCode[strings.TrimSpace(l.AccountCode)]
		}
		if !ok {
			return nil, fmt.Errorf("line %d: %w", i, ErrAccountNotFound)
		}
		if !acc.Postable() {
			return nil, fmt.Errorf("account %s: %w", acc.Code, ErrAccountNotPostable)
		}
		l.AccountID = acc.ID
		l.AccountCode = acc.Code
		l.Debit = shared.Round2(l.Debit)
		l.Credit = shared.Round2(l.Credit)
		out[i] = l
	}
	return out, nil
}

// ReverseJournal creates a reversing journal entry with mirrored lines.
func (s *Service) ReverseJournal(ctx context.Context, input ReverseInput) (JournalEntry, error) {
	if input.EntryID == 0 {
		return JournalEntry{}, errors.New("accounting: entry id required")
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalWithLines(ctx, input.EntryID)
		if err != nil {
			return err
		}
		if original.Status != JournalStatusPosted {
			return ErrAlreadyReversed
		}
		if strings.HasSuffix(original.SourceModule, reversalSuffix) {
			return shared.NewUserError("A reversal cannot itself be reversed.")
		}
		targetDate := s.now()
		if input.TargetDate != nil {
			targetDate = *input.TargetDate
		}
		if targetDate.Before(original.Date) {
			targetDate = original.Date
		}
		posting := PostingInput{
			Date:         shared.DateOnly(targetDate),
			SourceModule: original.SourceModule + reversalSuffix,
			SourceID:     original.SourceID,
			Memo:         defaultReversalMemo(input.Memo, original.Number),
			PostedBy:     input.ActorID,
			Lines:        reverseLines(original.Lines),
		}
		if existing, err := tx.LinkedEntryID(ctx, posting.SourceModule, posting.SourceID); err != nil {
			return err
		} else if existing != 0 {
			return ErrAlreadyReversed
		}
		inserted, err := tx.InsertJournalEntry(ctx, posting)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, inserted.ID, posting.Lines); err != nil {
			return err
		}
		if err := tx.LinkSource(ctx, posting.SourceModule, posting.SourceID, inserted.ID); err != nil {
			if errors.Is(err, ErrSourceConflict) {
				return ErrAlreadyReversed
			}
			return err
		}
		reversal = inserted
		reversal.Lines = toJournalLines(inserted.ID, posting.Lines)
		return s.record(ctx, input.ActorID, "journal.reverse", input.EntryID, map[string]any{
			"reversal_id":     reversal.ID,
			"reversal_number": reversal.Number,
		})
	})
	if err != nil {
		return JournalEntry{}, err
	}
	if s.observer != nil {
		s.observer.JournalPosted(reversal.SourceModule)
	}
	return reversal, nil
}

func reverseLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID:   line.AccountID,
			AccountCode: line.AccountCode,
			Description: line.Description,
			Debit:       line.Credit,
			Credit:      line.Debit,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID:   entryID,
			AccountID:   line.AccountID,
			AccountCode: line.AccountCode,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
	}
	return out
}

func defaultReversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) error {
	if s.audit == nil {
		return nil
	}
	return s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	})
}

// GetJournal loads one entry with its lines.
func (s *Service) GetJournal(ctx context.Context, id int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetJournalWithLines(ctx, id)
		return err
	})
	return entry, err
}

// EntryForSource returns the entry posted for a business event, or zero
// when nothing was posted yet.
func (s *Service) EntryForSource(ctx context.Context, module string, sourceID uuid.UUID) (int64, error) {
	var id int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		id, err = tx.LinkedEntryID(ctx, module, sourceID)
		return err
	})
	return id, err
}

// ListJournalEntries pages through entry headers, newest first.
func (s *Service) ListJournalEntries(ctx context.Context, filter JournalFilter, page int) ([]JournalEntry, shared.Pagination, error) {
	var entries []JournalEntry
	var total int
	p := shared.NewPagination(page, shared.DefaultPerPage, 0)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, total, err = tx.ListJournalEntries(ctx, filter, p.PerPage, p.Offset())
		return err
	})
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(page, p.PerPage, total), nil
}

// Daybook returns the chronological journal for the window.
func (s *Service) Daybook(ctx context.Context, filter JournalFilter) (ledger.DaybookReport, error) {
	var rows []ledger.Row
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		rows, err = tx.LedgerRows(ctx, "", filter)
		return err
	})
	if err != nil {
		return ledger.DaybookReport{}, err
	}
	return ledger.Daybook(rows), nil
}

// LedgerView is an account ledger with the account it was built for.
type LedgerView struct {
	Account Account
	Level   int
	Filter  JournalFilter
	Report  ledger.AccountReport
}

// AccountLedger builds the ledger of code at the requested level. Level 0
// accepts any code. The opening balance covers everything before From.
func (s *Service) AccountLedger(ctx context.Context, level int, code string, filter JournalFilter) (LedgerView, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return LedgerView{}, ErrAccountNotFound
	}
	if level != 0 && LevelForCode(code) != level {
		return LedgerView{}, ErrWrongLevel
	}
	view := LedgerView{Level: LevelForCode(code), Filter: filter}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts, err := tx.AccountsByCodes(ctx, []string{code})
		if err != nil {
			return err
		}
		acc, ok := accounts[code]
		if !ok {
			return ErrAccountNotFound
		}
		view.Account = acc
		opening, err := tx.OpeningBalance(ctx, code, filter.From)
		if err != nil {
			return err
		}
		rows, err := tx.LedgerRows(ctx, code, filter)
		if err != nil {
			return err
		}
		view.Report = ledger.AccountLedger(code, acc.Nature, opening, rows)
		return nil
	})
	return view, err
}

// Summaries aggregates account activity to the given level.
func (s *Service) Summaries(ctx context.Context, level int, filter JournalFilter) ([]ledger.Summary, error) {
	balances, names, err := s.balances(ctx, filter)
	if err != nil {
		return nil, err
	}
	return ledger.Summarize(prefixLength(level), balances, names), nil
}

// TrialBalance groups level summaries under their general accounts.
func (s *Service) TrialBalance(ctx context.Context, level int, filter JournalFilter) (reports.TrialBalance, error) {
	summaries, err := s.Summaries(ctx, level, filter)
	if err != nil {
		return reports.TrialBalance{}, err
	}
	return reports.BuildTrialBalance(reports.FromSummaries(summaries)), nil
}

// ProfitAndLoss reports revenue and expense over the window.
func (s *Service) ProfitAndLoss(ctx context.Context, filter JournalFilter) (reports.ProfitAndLoss, error) {
	summaries, err := s.Summaries(ctx, LevelDetail, filter)
	if err != nil {
		return reports.ProfitAndLoss{}, err
	}
	return reports.BuildProfitAndLoss(reports.FromSummaries(summaries)), nil
}

// BalanceSheet reports balances as of filter.To.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (reports.BalanceSheet, error) {
	summaries, err := s.Summaries(ctx, LevelDetail, JournalFilter{To: asOf})
	if err != nil {
		return reports.BalanceSheet{}, err
	}
	return reports.BuildBalanceSheet(reports.FromSummaries(summaries)), nil
}

func (s *Service) balances(ctx context.Context, filter JournalFilter) ([]ledger.Balance, map[string]ledger.Balance, error) {
	var balances []ledger.Balance
	names := map[string]ledger.Balance{}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		if balances, err = tx.AccountBalances(ctx, filter); err != nil {
			return err
		}
		accounts, err := tx.ListAccounts(ctx)
		if err != nil {
			return err
		}
		for _, a := range accounts {
			names[a.Code] = ledger.Balance{Code: a.Code, Name: a.Name, Type: string(a.Type), Nature: a.Nature}
		}
		return nil
	})
	return balances, names, err
}

func prefixLength(level int) int {
	switch level {
	case LevelGroup:
		return 1
	case LevelGeneral:
		return 2
	case LevelSubsidiary:
		return 4
	default:
		return 0
	}
}

// CheckIntegrity lists posted entries that do not balance.
func (s *Service) CheckIntegrity(ctx context.Context) ([]IntegrityIssue, error) {
	var issues []IntegrityIssue
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		issues, err = tx.UnbalancedEntries(ctx)
		return err
	})
	return issues, err
}
