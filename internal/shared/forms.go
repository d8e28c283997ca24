package shared

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidID is returned for malformed numeric identifiers.
var ErrInvalidID = errors.New("invalid id")

// ParseID parses a positive int64 identifier from a path or form value.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidID
	}
	return id, nil
}

// ParseOptionalID returns 0 for blank input.
func ParseOptionalID(raw string) (int64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return ParseID(raw)
}

// ParseIDList parses repeated form values, skipping blanks.
func ParseIDList(values []string) ([]int64, error) {
	ids := make([]int64, 0, len(values))
	for _, raw := range values {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		id, err := ParseID(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ValidationMessages turns validator errors into per-field messages keyed by
// the struct field name.
func ValidationMessages(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			out["general"] = UserSafeMessage(err)
		}
		return out
	}
	for _, fe := range verrs {
		out[fe.Field()] = validationMessage(fe)
	}
	return out
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "min":
		return "Must be at least " + fe.Param() + "."
	case "max":
		return "Must be at most " + fe.Param() + "."
	case "gt":
		return "Must be greater than " + fe.Param() + "."
	case "gte":
		return "Must be " + fe.Param() + " or more."
	case "lte":
		return "Must be " + fe.Param() + " or less."
	case "oneof":
		return "Choose one of: " + fe.Param() + "."
	default:
		return "Invalid value."
	}
}
