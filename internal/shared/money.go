package shared

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidAmount is returned for malformed money input.
var ErrInvalidAmount = errors.New("invalid amount")

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ParseAmount parses a user supplied money value such as "1,250.50".
func ParseAmount(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	cleaned = strings.ReplaceAll(cleaned, " ", "")
	if cleaned == "" {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidAmount
	}
	return Round2(v), nil
}

// AmountEqual compares two money values at cent precision.
func AmountEqual(a, b float64) bool {
	return math.Abs(Round2(a)-Round2(b)) < 0.005
}

// FormatAmount renders a numeric parameter for NUMERIC columns.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(Round2(v), 'f', 2, 64)
}
