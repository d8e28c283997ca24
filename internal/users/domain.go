package users

import (
	"time"

	"github.com/estatebook/estatebook/internal/shared"
)

// User is a person with access to the system: staff or a project member.
type User struct {
	ID         int64
	Email      string
	Name       string
	Phone      string
	NationalID string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListFilter narrows the user listing.
type ListFilter struct {
	Search  string
	Active  *bool
	Page    int
	PerPage int
}

// UserInput carries create and update submissions. Password is optional on
// update; a blank value keeps the current one.
type UserInput struct {
	Email      string  `validate:"required,email,max=254"`
	Name       string  `validate:"required,max=200"`
	Phone      string  `validate:"max=40"`
	NationalID string  `validate:"max=40"`
	Password   string  `validate:"omitempty,min=8,max=72"`
	RoleIDs    []int64 `validate:"-"`
}

var (
	// ErrNotFound indicates the user does not exist.
	ErrNotFound = shared.ErrNotFound
	// ErrDuplicateEmail is returned when another account uses the email.
	ErrDuplicateEmail = shared.NewUserError("Another account already uses this email address.")
	// ErrPasswordRequired is returned when creating a user without password.
	ErrPasswordRequired = shared.NewUserError("A password of at least 8 characters is required.")
	// ErrSelfDeactivate prevents locking oneself out.
	ErrSelfDeactivate = shared.NewUserError("You cannot deactivate your own account.")
)
