package accounting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/accounting/ledger"
	"github.com/estatebook/estatebook/internal/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Nature is the side an account's balance normally sits on.
type Nature = ledger.Nature

const (
	NatureDebit  = ledger.NatureDebit
	NatureCredit = ledger.NatureCredit
)

// Account levels. The level follows from the code length.
const (
	LevelGroup      = 1
	LevelGeneral    = 2
	LevelSubsidiary = 3
	LevelDetail     = 4
)

// LevelForCode maps a code to its level: one digit is a group, two a
// general account, three or four a subsidiary and anything longer a detail
// account.
func LevelForCode(code string) int {
	switch n := len(strings.TrimSpace(code)); {
	case n <= 1:
		return LevelGroup
	case n == 2:
		return LevelGeneral
	case n < ledger.DetailCodeLength:
		return LevelSubsidiary
	default:
		return LevelDetail
	}
}

// LevelName labels a level for display.
func LevelName(level int) string {
	switch level {
	case LevelGroup:
		return "Group"
	case LevelGeneral:
		return "General"
	case LevelSubsidiary:
		return "Subsidiary"
	case LevelDetail:
		return "Detail"
	default:
		return "Unknown"
	}
}

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

// JournalStatusPosted is the only status; corrections are reversal entries.
const JournalStatusPosted JournalStatus = "POSTED"

// Source modules used for idempotent links.
const (
	SourceManual      = "MANUAL"
	SourceInstallment = "INSTALLMENT"
	SourcePayment     = "PAYMENT"
	SourcePenalty     = "PENALTY"
	reversalSuffix    = ":REVERSAL"
)

// Account models a chart of accounts node.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Level     int
	ParentID  *int64
	Type      AccountType
	Nature    Nature
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Postable reports whether journal lines may reference the account.
func (a Account) Postable() bool {
	return a.IsActive && a.Level == LevelDetail
}

// JournalEntry captures posting metadata.
type JournalEntry struct {
	ID           int64
	Number       int64
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	PostedAt     time.Time
	Status       JournalStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Lines        []JournalLine
}

// Totals sums both sides of the entry.
func (e JournalEntry) Totals() (debit, credit float64) {
	for _, l := range e.Lines {
		debit += l.Debit
		credit += l.Credit
	}
	return shared.Round2(debit), shared.Round2(credit)
}

// JournalLine stores debit or credit amount for an account.
type JournalLine struct {
	ID          int64
	JournalID   int64
	AccountID   int64
	AccountCode string
	AccountName string
	Description string
	Debit       float64
	Credit      float64
}

// AccountMapping links integration keys to ledger accounts.
type AccountMapping struct {
	Module      string
	Key         string
	AccountID   int64
	AccountCode string
	AccountName string
	UpdatedAt   time.Time
}

// Mapping keys resolved by the integration hooks.
const (
	MappingPayment     = "PAYMENT"
	MappingInstallment = "INSTALLMENT"
	MappingPenalty     = "PENALTY"

	KeyCash     = "CASH"
	KeyBank     = "BANK"
	KeyAdvances = "ADVANCES"
	KeyIncome   = "INCOME"
)

// DefaultMappings are installed together with the chart of accounts.
var DefaultMappings = []struct {
	Module, Key, Code string
}{
	{MappingPayment, KeyCash, "110101"},
	{MappingPayment, KeyBank, "110201"},
	{MappingInstallment, KeyAdvances, "210101"},
	{MappingPenalty, KeyIncome, "420101"},
}

// Member receivable accounts live under this subsidiary account.
const MemberReceivableParent = "1103"

// MemberAccountCode returns the detail receivable account of a user. The
// suffix has a fixed width so no member code is a prefix of another.
func MemberAccountCode(userID int64) string {
	return fmt.Sprintf("%s%09d", MemberReceivableParent, userID)
}

// PostingLineInput describes a journal line. Either AccountID or
// AccountCode identifies the account.
type PostingLineInput struct {
	AccountID   int64
	AccountCode string
	Description string
	Debit       float64
	Credit      float64
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	SourceModule string
	SourceID     uuid.UUID
	Memo         string
	PostedBy     int64
	Lines        []PostingLineInput
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID    int64
	ActorID    int64
	Memo       string
	TargetDate *time.Time
}

// JournalFilter narrows journal and ledger queries.
type JournalFilter struct {
	From time.Time
	To   time.Time
}

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = shared.NewUserError("Debits and credits must balance.")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = shared.NewUserError("A journal entry needs at least two lines.")
	// ErrInvalidLine indicates a line carrying both or neither side.
	ErrInvalidLine = shared.NewUserError("Each line takes either a debit or a credit amount.")
	// ErrSourceAlreadyLinked indicates idempotency conflict.
	ErrSourceAlreadyLinked = errors.New("accounting: source already linked")
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = fmt.Errorf("accounting: journal entry %w", shared.ErrNotFound)
	// ErrAccountNotFound indicates an unknown account id or code.
	ErrAccountNotFound = fmt.Errorf("accounting: account %w", shared.ErrNotFound)
	// ErrAccountNotPostable indicates a group account or an inactive one.
	ErrAccountNotPostable = shared.NewUserError("Only active detail accounts accept postings.")
	// ErrAlreadyReversed indicates the entry already has a reversal.
	ErrAlreadyReversed = shared.NewUserError("This entry has already been reversed.")
	// ErrMappingNotFound indicates account mapping missing.
	ErrMappingNotFound = errors.New("accounting: account mapping not found")
	// ErrDuplicateCode indicates the account code is taken.
	ErrDuplicateCode = shared.NewUserError("An account with this code already exists.")
	// ErrParentNotFound indicates a code whose parent prefix is not in the chart.
	ErrParentNotFound = shared.NewUserError("No parent account exists for this code.")
	// ErrWrongLevel indicates a ledger requested at a code of another level.
	ErrWrongLevel = shared.NewUserError("The account code does not belong to this ledger level.")
)

// Validate ensures posting input meets minimum criteria.
func (in PostingInput) Validate() error {
	if in.Date.IsZero() {
		return errors.New("accounting: date required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	// Amounts are checked as they will be stored, at two decimals.
	var debit, credit float64
	for idx, line := range in.Lines {
		if line.AccountID == 0 && strings.TrimSpace(line.AccountCode) == "" {
			return fmt.Errorf("accounting: line %d missing account", idx)
		}
		dr, cr := shared.Round2(line.Debit), shared.Round2(line.Credit)
		if dr < 0 || cr < 0 {
			return fmt.Errorf("accounting: line %d negative amount: %w", idx, ErrInvalidLine)
		}
		if (dr > 0) == (cr > 0) {
			return fmt.Errorf("accounting: line %d: %w", idx, ErrInvalidLine)
		}
		debit += dr
		credit += cr
	}
	if !shared.AmountEqual(debit, credit) {
		return ErrUnbalanced
	}
	if in.SourceModule == "" {
		return errors.New("accounting: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("accounting: source id required")
	}
	return nil
}

// SourceRef derives the deterministic source id of a business event, so a
// retried posting hits the idempotent link instead of a second entry.
func SourceRef(module string, parts ...any) uuid.UUID {
	key := module
	for _, p := range parts {
		key += fmt.Sprintf(":%v", p)
	}
	return uuid.NewSHA1(uuid.Nil, []byte(key))
}
