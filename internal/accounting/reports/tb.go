package reports

import (
	"math"
	"sort"
	"strings"

	"github.com/estatebook/estatebook/internal/accounting/ledger"
)

// AccountBalance models a ledger account with aggregated balances. Opening
// and Closing are debit-positive.
type AccountBalance struct {
	Code    string
	Name    string
	Type    string
	Nature  string
	Opening float64
	Debit   float64
	Credit  float64
}

// Closing computes the closing balance for the account.
func (a AccountBalance) Closing() float64 {
	return round2(a.Opening + a.Debit - a.Credit)
}

// Natural returns the closing balance on the account's nature side.
func (a AccountBalance) Natural() float64 {
	if strings.EqualFold(a.Nature, string(ledger.NatureCredit)) {
		return -a.Closing()
	}
	return a.Closing()
}

// GroupKey returns a key used for grouping trial balance rows: the general
// account code.
func (a AccountBalance) GroupKey() string {
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// FromSummaries adapts ledger summaries to report rows.
func FromSummaries(in []ledger.Summary) []AccountBalance {
	out := make([]AccountBalance, 0, len(in))
	for _, s := range in {
		out = append(out, AccountBalance{
			Code:    s.Code,
			Name:    s.Name,
			Type:    s.Type,
			Nature:  string(s.Nature),
			Opening: round2(s.OpeningDebit - s.OpeningCredit),
			Debit:   s.Debit,
			Credit:  s.Credit,
		})
	}
	return out
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	Code          string
	Name          string
	Opening       float64
	Debit         float64
	Credit        float64
	Closing       float64
	ClosingDebit  float64
	ClosingCredit float64
}

// TrialBalanceGroup aggregates accounts for presentation.
type TrialBalanceGroup struct {
	Key      string
	Accounts []TrialBalanceAccount
	Opening  float64
	Debit    float64
	Credit   float64
	Closing  float64
}

// TrialBalance is the final structure rendered in UI/PDF.
type TrialBalance struct {
	Groups             []TrialBalanceGroup
	TotalDebit         float64
	TotalCredit        float64
	TotalOpening       float64
	TotalClosing       float64
	TotalClosingDebit  float64
	TotalClosingCredit float64
}

// Balanced reports whether closing debits equal closing credits.
func (tb TrialBalance) Balanced() bool {
	return round2(tb.TotalClosingDebit) == round2(tb.TotalClosingCredit)
}

// BuildTrialBalance converts account balances into grouped trial balance data.
func BuildTrialBalance(accounts []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, acc := range accounts {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceAccount{
			Code:    acc.Code,
			Name:    acc.Name,
			Opening: acc.Opening,
			Debit:   acc.Debit,
			Credit:  acc.Credit,
			Closing: acc.Closing(),
		}
		if row.Closing >= 0 {
			row.ClosingDebit = row.Closing
		} else {
			row.ClosingCredit = -row.Closing
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Opening = round2(grp.Opening + row.Opening)
		grp.Debit = round2(grp.Debit + row.Debit)
		grp.Credit = round2(grp.Credit + row.Credit)
		grp.Closing = round2(grp.Closing + row.Closing)
	}

	sort.Strings(keys)
	result := TrialBalance{}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		for _, row := range grp.Accounts {
			result.TotalClosingDebit = round2(result.TotalClosingDebit + row.ClosingDebit)
			result.TotalClosingCredit = round2(result.TotalClosingCredit + row.ClosingCredit)
		}
		result.Groups = append(result.Groups, *grp)
		result.TotalOpening = round2(result.TotalOpening + grp.Opening)
		result.TotalDebit = round2(result.TotalDebit + grp.Debit)
		result.TotalCredit = round2(result.TotalCredit + grp.Credit)
		result.TotalClosing = round2(result.TotalClosing + grp.Closing)
	}
	return result
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
