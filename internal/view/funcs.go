package view

import (
	"errors"
	"html/template"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatMoney renders an amount with thousands separators and two decimals.
func FormatMoney(v float64) string {
	if v > -0.005 && v < 0.005 {
		v = 0
	}
	return printer.Sprintf("%.2f", v)
}

// Funcs returns the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
		"formatDatePtr": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006")
		},
		"formatDateTime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02 Jan 2006 15:04")
		},
		"inputDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"money":   FormatMoney,
		"percent": func(v float64) string { return printer.Sprintf("%.2f%%", v) },
		"lower":   strings.ToLower,
		"title": func(s string) string {
			s = strings.ReplaceAll(strings.ToLower(s), "_", " ")
			if s == "" {
				return s
			}
			return strings.ToUpper(s[:1]) + s[1:]
		},
		"add":       func(a, b int) int { return a + b },
		"sub":       func(a, b int) int { return a - b },
		"hasPrefix": strings.HasPrefix,
		"list":      func(items ...any) []any { return items },
		"dict": func(pairs ...any) (map[string]any, error) {
			if len(pairs)%2 != 0 {
				return nil, errors.New("dict expects key/value pairs")
			}
			out := make(map[string]any, len(pairs)/2)
			for i := 0; i < len(pairs); i += 2 {
				key, ok := pairs[i].(string)
				if !ok {
					return nil, errors.New("dict keys must be strings")
				}
				out[key] = pairs[i+1]
			}
			return out, nil
		},
		// ratePercent shows a fractional rate as an editable percentage.
		"ratePercent": func(v float64) string {
			return strconv.FormatFloat(math.Round(v*1e6)/1e4, 'f', -1, 64)
		},
		"fileSize": FormatSize,
	}
}

// FormatSize renders a byte count in KB or MB.
func FormatSize(n int64) string {
	switch {
	case n >= 1<<20:
		return printer.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return printer.Sprintf("%.0f KB", float64(n)/(1<<10))
	default:
		return strconv.FormatInt(n, 10) + " B"
	}
}
