// Package ledger folds posted journal lines into the books: the daybook and
// the general, subsidiary and detail ledgers. Everything here is pure; rows
// are fetched by the accounting repository.
package ledger

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Nature is the side an account normally carries its balance on.
type Nature string

const (
	NatureDebit  Nature = "DEBIT"
	NatureCredit Nature = "CREDIT"
)

// Side tells on which side a running balance currently sits.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
	SideNil    Side = "NIL"
)

// Row is one posted journal line joined with its entry and account.
type Row struct {
	EntryID      int64
	Number       int64
	Date         time.Time
	Memo         string
	SourceModule string
	LineID       int64
	AccountCode  string
	AccountName  string
	Description  string
	Debit        float64
	Credit       float64
}

// Opening carries the debit and credit totals posted before a report window.
type Opening struct {
	Debit  float64
	Credit float64
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SideOf classifies net = debit - credit at two decimals.
func SideOf(net float64) Side {
	switch n := round2(net); {
	case n > 0:
		return SideDebit
	case n < 0:
		return SideCredit
	default:
		return SideNil
	}
}

// Signed returns net expressed on the account's natural side: positive when
// the balance sits where the nature expects it.
func Signed(nature Nature, net float64) float64 {
	if nature == NatureCredit {
		return round2(-net)
	}
	return round2(net)
}

// SortRows orders rows by date, entry number and line id.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.LineID < b.LineID
	})
}

// DetailCodeLength is the shortest code of a detail account.
const DetailCodeLength = 5

// IsDetailCode reports whether code names a detail account.
func IsDetailCode(code string) bool {
	return len(strings.TrimSpace(code)) >= DetailCodeLength
}

// Covers reports whether the ledger of scope includes account code. A detail
// scope is a leaf and covers only itself; shorter scopes cover every code
// beneath them. An empty scope covers every account.
func Covers(scope, code string) bool {
	scope = strings.TrimSpace(scope)
	if IsDetailCode(scope) {
		return code == scope
	}
	return strings.HasPrefix(code, scope)
}
