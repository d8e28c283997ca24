package penalties

import (
	"time"

	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/shared"
)

// Status of a penalty.
type Status string

const (
	StatusAccrued Status = "ACCRUED"
	StatusWaived  Status = "WAIVED"
)

// Statuses lists the filter values of the penalty listing.
var Statuses = []Status{StatusAccrued, StatusWaived}

// Penalty is the late fee accrued on one user installment.
type Penalty struct {
	ID                int64
	UserInstallmentID int64
	InstallmentTitle  string
	DueDate           time.Time
	ProjectID         int64
	ProjectName       string
	UserID            int64
	UserName          string
	DaysLate          int
	DailyRate         float64
	Amount            float64
	AsOf              time.Time
	Status            Status
	WaiveReason       string
	JournalEntryID    *int64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Candidate is an installment that may be late, with the project terms
// that price the delay.
type Candidate struct {
	Installment installments.UserInstallment
	Project     projects.Project
}

// Computation is the penalty owed on an installment at a date.
type Computation struct {
	DaysLate  int
	DailyRate float64
	Amount    float64
}

// Compute prices the delay on inst. A paid installment stops accruing at
// the day it was settled.
func Compute(inst installments.UserInstallment, project projects.Project, asOf time.Time) Computation {
	lateUntil := shared.DateOnly(asOf)
	if inst.Status == installments.StatusPaid && inst.PaidAt != nil {
		// paid_at is a calendar date; read back it may carry the server zone.
		lateUntil = shared.DateOnly(inst.PaidAt.UTC())
	}
	days := shared.DaysBetween(inst.DueDate, lateUntil) - project.GraceDays
	if days < 0 {
		days = 0
	}
	rate := shared.Round2(inst.ShareAmount * project.PenaltyRate)
	return Computation{
		DaysLate:  days,
		DailyRate: rate,
		Amount:    shared.Round2(float64(days) * rate),
	}
}

// AccrualResult summarizes one accrual run.
type AccrualResult struct {
	AsOf      time.Time
	Scanned   int
	Created   int
	Grown     int
	Unchanged int
	Waived    int
	// Posted is the total amount booked to penalty income by the run.
	Posted float64
}

// ListFilter narrows the penalty listing.
type ListFilter struct {
	ProjectID int64
	UserID    int64
	Status    Status
	Page      int
	PerPage   int
}

var (
	// ErrNotFound indicates the penalty does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrAlreadyWaived is returned when waiving twice.
	ErrAlreadyWaived = shared.NewUserError("The penalty is already waived.")
	// ErrReasonRequired is returned when a waiver has no reason.
	ErrReasonRequired = shared.NewUserError("Give a reason for the waiver.")
)
