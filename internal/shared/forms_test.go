package shared

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIDs(t *testing.T) {
	id, err := ParseID(" 12 ")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	_, err = ParseID("0")
	assert.ErrorIs(t, err, ErrInvalidID)

	opt, err := ParseOptionalID("")
	require.NoError(t, err)
	assert.Zero(t, opt)

	ids, err := ParseIDList([]string{"3", "", "4"})
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids)

	_, err = ParseIDList([]string{"x"})
	assert.ErrorIs(t, err, ErrInvalidID)
}

func TestValidationMessages(t *testing.T) {
	type form struct {
		Email string  `validate:"required,email"`
		Share float64 `validate:"gt=0,lte=100"`
	}
	err := validator.New().Struct(form{Email: "nope", Share: 120})
	msgs := ValidationMessages(err)
	assert.Equal(t, "Enter a valid email address.", msgs["Email"])
	assert.Equal(t, "Must be 100 or less.", msgs["Share"])

	assert.Empty(t, ValidationMessages(nil))
	assert.Equal(t, "Something went wrong. Please try again.", ValidationMessages(assert.AnError)["general"])
}
