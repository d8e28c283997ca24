package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrSessionMissing occurs when a request carries no session.
	ErrSessionMissing = errors.New("session missing")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserError is implemented by domain errors whose text is safe to show in forms.
type UserError interface {
	error
	UserMessage() string
}

// userError tags an error message as displayable.
type userError struct {
	msg string
}

func (e userError) Error() string       { return e.msg }
func (e userError) UserMessage() string { return e.msg }

// NewUserError returns an error whose message UserSafeMessage passes through.
func NewUserError(msg string) error {
	return userError{msg: msg}
}

// UserSafeMessage returns text suitable for rendering next to a form.
// Errors that do not opt in through UserError collapse to a generic message.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var ue UserError
	if errors.As(err, &ue) {
		return ue.UserMessage()
	}
	if errors.Is(err, ErrNotFound) {
		return "The requested record no longer exists."
	}
	if errors.Is(err, ErrIdempotencyConflict) {
		return "This form was already submitted."
	}
	return "Something went wrong. Please try again."
}

// IsUserError reports whether err carries a displayable message. Handlers
// skip error logging for these.
func IsUserError(err error) bool {
	var ue UserError
	return errors.As(err, &ue)
}
