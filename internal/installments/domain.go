package installments

import (
	"time"

	"github.com/estatebook/estatebook/internal/shared"
)

// Status tracks how much of a user installment has been paid.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusPartial Status = "PARTIAL"
	StatusPaid    Status = "PAID"
)

// Statuses lists the filter values of the installment listing.
var Statuses = []Status{StatusPending, StatusPartial, StatusPaid}

// Definition is a project-wide installment template. Generating it creates
// one UserInstallment per project member.
type Definition struct {
	ID          int64
	ProjectID   int64
	ProjectName string
	Title       string
	DueDate     time.Time
	Amount      float64
	CreatedBy   int64
	CreatedAt   time.Time
	Generated   int
}

// UserInstallment is one member's part of a definition.
type UserInstallment struct {
	ID             int64
	DefinitionID   int64
	ProjectID      int64
	ProjectName    string
	UserID         int64
	UserName       string
	UserEmail      string
	Title          string
	DueDate        time.Time
	ShareAmount    float64
	PaidAmount     float64
	Status         Status
	PaidAt         *time.Time
	JournalEntryID *int64
	CreatedAt      time.Time
}

// Outstanding is the amount still owed.
func (u UserInstallment) Outstanding() float64 {
	return shared.Round2(u.ShareAmount - u.PaidAmount)
}

// IsOverdue reports whether the installment is unpaid after its due date.
func (u UserInstallment) IsOverdue(asOf time.Time) bool {
	return u.Status != StatusPaid && shared.DateOnly(asOf).After(shared.DateOnly(u.DueDate))
}

// DaysOverdue counts the days past due as of asOf, zero when not overdue.
func (u UserInstallment) DaysOverdue(asOf time.Time) int {
	if !u.IsOverdue(asOf) {
		return 0
	}
	return shared.DaysBetween(u.DueDate, asOf)
}

// StatusFor derives the status of an installment from the paid amount.
func StatusFor(share, paid float64) Status {
	switch {
	case shared.Round2(paid) <= 0:
		return StatusPending
	case shared.Round2(paid) >= shared.Round2(share):
		return StatusPaid
	default:
		return StatusPartial
	}
}

// DefinitionInput carries the first wizard step.
type DefinitionInput struct {
	ProjectID int64     `validate:"required,gt=0"`
	Title     string    `validate:"required,max=200"`
	DueDate   time.Time `validate:"required"`
	Amount    float64   `validate:"gt=0"`
}

// ShareLine is the amount one member will owe for a definition.
type ShareLine struct {
	UserID       int64
	UserName     string
	SharePercent float64
	Amount       float64
	// Exists is set when the member already has an installment for the definition.
	Exists bool
}

// Distribution previews how a definition splits across members.
type Distribution struct {
	ProjectName string
	Input       DefinitionInput
	Lines       []ShareLine
	SharesTotal float64
	Total       float64
	// Unassigned is the part of the amount not covered by member shares.
	Unassigned float64
}

// GenerateResult reports a generation run.
type GenerateResult struct {
	Definition Definition
	Created    []UserInstallment
	Skipped    int
}

// ListFilter narrows the installment listing.
type ListFilter struct {
	ProjectID    int64
	UserID       int64
	DefinitionID int64
	Status       Status
	DueFrom      *time.Time
	DueTo        *time.Time
	// OverdueAsOf keeps unpaid installments due before the date.
	OverdueAsOf *time.Time
	Unpaid      bool
	Page        int
	PerPage     int
}

var (
	// ErrNotFound indicates the definition or installment does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrNoMembers is returned when generating for a project without members.
	ErrNoMembers = shared.NewUserError("The project has no members to bill.")
	// ErrPaidTooMuch guards the paid amount against exceeding the share.
	ErrPaidTooMuch = shared.NewUserError("The amount exceeds what is outstanding on the installment.")
)
