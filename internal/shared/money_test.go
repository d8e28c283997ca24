package shared

import (
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"100":       100,
		"1,250.50":  1250.5,
		" 12.3 ":    12.3,
		"0.004":     0,
		"1 000 000": 1000000,
	}
	for raw, want := range cases {
		got, err := ParseAmount(raw)
		require.NoError(t, err, raw)
		assert.InDelta(t, want, got, 0.0001, raw)
	}
	for _, raw := range []string{"", "abc", "NaN", "1.2.3"} {
		_, err := ParseAmount(raw)
		assert.ErrorIs(t, err, ErrInvalidAmount, raw)
	}
}

func TestFormatAmountAndEquality(t *testing.T) {
	assert.Equal(t, "10.00", FormatAmount(10))
	assert.Equal(t, "0.30", FormatAmount(0.1+0.2))
	assert.True(t, AmountEqual(0.1+0.2, 0.3))
	assert.False(t, AmountEqual(1.00, 1.01))
}

func TestDaysBetweenIgnoresClock(t *testing.T) {
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2024, 3, 11, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, 10, DaysBetween(due, asOf))
	assert.Equal(t, -10, DaysBetween(asOf, due))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, time.February, d.Month())

	_, err = ParseDate("29/02/2024")
	assert.ErrorIs(t, err, ErrInvalidDate)

	opt, err := ParseOptionalDate("  ")
	require.NoError(t, err)
	assert.Nil(t, opt)
}

func TestPagination(t *testing.T) {
	p := NewPagination(3, 10, 45)
	assert.Equal(t, 5, p.TotalPages)
	assert.Equal(t, 20, p.Offset())
	assert.True(t, p.HasPrev())
	assert.True(t, p.HasNext())

	first := NewPagination(0, 0, 0)
	assert.Equal(t, 1, first.Page)
	assert.Equal(t, DefaultPerPage, first.PerPage)
	assert.False(t, first.HasNext())

	assert.Equal(t, 1, PageFromQuery(url.Values{"page": {"-2"}}))
	assert.Equal(t, 4, PageFromQuery(url.Values{"page": {"4"}}))
}

func TestUserSafeMessage(t *testing.T) {
	assert.Equal(t, "", UserSafeMessage(nil))
	assert.Equal(t, "Share must be positive", UserSafeMessage(NewUserError("Share must be positive")))
	assert.Equal(t, "This form was already submitted.", UserSafeMessage(ErrIdempotencyConflict))
	assert.Equal(t, "Something went wrong. Please try again.", UserSafeMessage(errors.New("pq: deadlock")))
}

func TestDefaultRolesOnlyReferenceCatalogue(t *testing.T) {
	known := map[string]bool{}
	for _, p := range AllScopes() {
		known[p] = true
	}
	for role, perms := range DefaultRoleScopes() {
		for _, p := range perms {
			assert.True(t, known[p], "%s grants unknown %s", role, p)
		}
	}
	assert.ElementsMatch(t, AllScopes(), DefaultRoleScopes()[RoleAdmin])
}
