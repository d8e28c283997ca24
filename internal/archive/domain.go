package archive

import (
	"time"

	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/shared"
)

// Kind names what a batch archived.
type Kind string

const (
	KindProject Kind = "PROJECT"
	KindUser    Kind = "USER"
)

// Batch groups every row moved out of the live tables by one archive call.
type Batch struct {
	ID         uuid.UUID
	Kind       Kind
	SubjectID  int64
	Label      string
	RowCount   int
	ArchivedBy int64
	ArchivedAt time.Time
	RestoredBy *int64
	RestoredAt *time.Time
	Tables     []TableCount
}

// Restored reports whether the batch was already moved back.
func (b Batch) Restored() bool {
	return b.RestoredAt != nil
}

// TableCount records how many rows of a table a batch moved.
type TableCount struct {
	Table string
	Rows  int64
}

// Step moves the rows of Table whose Column equals the subject id.
type Step struct {
	Table  string
	Column string
}

// ProjectScope lists, child-first, what archiving a project moves.
var ProjectScope = []Step{
	{Table: "documents", Column: "project_id"},
	{Table: "penalties", Column: "project_id"},
	{Table: "payments", Column: "project_id"},
	{Table: "user_installments", Column: "project_id"},
	{Table: "installment_definitions", Column: "project_id"},
	{Table: "project_members", Column: "project_id"},
	{Table: "units", Column: "project_id"},
	{Table: "projects", Column: "id"},
}

// UserScope lists, child-first, what archiving a user moves.
var UserScope = []Step{
	{Table: "documents", Column: "user_id"},
	{Table: "penalties", Column: "user_id"},
	{Table: "payments", Column: "user_id"},
	{Table: "user_installments", Column: "user_id"},
	{Table: "project_members", Column: "user_id"},
	{Table: "user_roles", Column: "user_id"},
	{Table: "users", Column: "id"},
}

// ScopeFor returns the steps of a kind.
func ScopeFor(kind Kind) []Step {
	switch kind {
	case KindProject:
		return ProjectScope
	case KindUser:
		return UserScope
	default:
		return nil
	}
}

// ListFilter narrows the batch listing.
type ListFilter struct {
	Kind     Kind
	Restored *bool
	Page     int
	PerPage  int
}

var (
	// ErrNotFound indicates the subject or batch does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrSelfArchive stops users from archiving their own account.
	ErrSelfArchive = shared.NewUserError("You cannot archive your own account.")
	// ErrAlreadyRestored rejects restoring a batch twice.
	ErrAlreadyRestored = shared.NewUserError("This batch was already restored.")
	// ErrRestoreConflict is returned when live data now clashes with the batch,
	// for example a reused project code or email.
	ErrRestoreConflict = shared.NewUserError("The batch cannot be restored because newer records use the same codes, emails or parents.")
)
