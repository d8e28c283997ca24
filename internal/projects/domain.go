package projects

import (
	"time"

	"github.com/estatebook/estatebook/internal/shared"
)

// Status tracks the lifecycle of a project.
type Status string

const (
	StatusPlanning  Status = "PLANNING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
)

// Statuses lists the values offered on the project form.
var Statuses = []Status{StatusPlanning, StatusActive, StatusCompleted}

// Project is a construction or real-estate development.
type Project struct {
	ID          int64
	Code        string
	Name        string
	Location    string
	Description string
	Status      Status
	StartDate   time.Time
	EndDate     *time.Time
	Budget      float64
	// PenaltyRate is the daily late-payment rate applied to an installment share.
	PenaltyRate float64
	GraceDays   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Unit is an apartment, house or lot inside a project.
type Unit struct {
	ID        int64
	ProjectID int64
	Number    string
	Floor     int
	Area      float64
	Type      string
	Price     float64
	OwnerID   int64
	OwnerName string
}

// UnitTypes lists the values offered on the unit form.
var UnitTypes = []string{"APARTMENT", "HOUSE", "SHOP", "LOT", "PARKING"}

// Member links a user to a project with an ownership share.
type Member struct {
	ProjectID    int64
	UserID       int64
	UserName     string
	UserEmail    string
	SharePercent float64
	UnitID       *int64
	UnitNumber   string
	JoinedAt     time.Time
}

// Membership is one project seen from a member's side.
type Membership struct {
	Project      Project
	SharePercent float64
	UnitNumber   string
	JoinedAt     time.Time
}

// ListFilter narrows the project listing.
type ListFilter struct {
	Search  string
	Status  Status
	Page    int
	PerPage int
}

// ProjectInput carries create and update submissions.
type ProjectInput struct {
	Code        string     `validate:"required,max=32"`
	Name        string     `validate:"required,max=200"`
	Location    string     `validate:"max=200"`
	Description string     `validate:"max=2000"`
	Status      Status     `validate:"required,oneof=PLANNING ACTIVE COMPLETED"`
	StartDate   time.Time  `validate:"required"`
	EndDate     *time.Time `validate:"-"`
	Budget      float64    `validate:"gte=0"`
	PenaltyRate float64    `validate:"gte=0,lte=1"`
	GraceDays   int        `validate:"gte=0,lte=365"`
}

// UnitInput carries a new unit.
type UnitInput struct {
	Number string  `validate:"required,max=32"`
	Floor  int     `validate:"gte=-10,lte=300"`
	Area   float64 `validate:"gte=0"`
	Type   string  `validate:"required,oneof=APARTMENT HOUSE SHOP LOT PARKING"`
	Price  float64 `validate:"gte=0"`
}

// MemberInput assigns a user to a project. UnitID 0 means no unit.
type MemberInput struct {
	UserID       int64   `validate:"required,gt=0"`
	SharePercent float64 `validate:"gt=0,lte=100"`
	UnitID       int64   `validate:"gte=0"`
}

// Assignment is the checked outcome of a MemberInput, shown on the
// confirmation step before it is saved.
type Assignment struct {
	Project      Project
	UserID       int64
	UserName     string
	UserEmail    string
	SharePercent float64
	Unit         *Unit
	// Allocated is the project's total share once the assignment is saved.
	Allocated float64
	Replacing bool
}

// ShareSummary reports how much of a project is owned.
type ShareSummary struct {
	Allocated float64
	Remaining float64
	Members   int
}

var (
	// ErrNotFound indicates the project, unit or member does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrDuplicateCode is returned when another project uses the code.
	ErrDuplicateCode = shared.NewUserError("Another project already uses this code.")
	// ErrDuplicateUnit is returned when the unit number exists in the project.
	ErrDuplicateUnit = shared.NewUserError("This unit number already exists in the project.")
	// ErrInvalidDates is returned when a project ends before it starts.
	ErrInvalidDates = shared.NewUserError("The end date must not be before the start date.")
	// ErrShareOverflow is returned when member shares would exceed 100%.
	ErrShareOverflow = shared.NewUserError("Member shares of a project cannot exceed 100%.")
	// ErrInvalidShare is returned for shares outside (0, 100].
	ErrInvalidShare = shared.NewUserError("The share must be greater than 0 and at most 100%.")
	// ErrUnitNotInProject is returned when the unit belongs to another project.
	ErrUnitNotInProject = shared.NewUserError("The selected unit does not belong to this project.")
	// ErrUnitTaken is returned when another member already owns the unit.
	ErrUnitTaken = shared.NewUserError("The selected unit is already assigned to another member.")
	// ErrInactiveUser is returned when assigning a disabled account.
	ErrInactiveUser = shared.NewUserError("Inactive users cannot join a project.")
	// ErrMemberHasBalance blocks removing a member who still owes installments.
	ErrMemberHasBalance = shared.NewUserError("The member still has outstanding installments in this project.")
)
