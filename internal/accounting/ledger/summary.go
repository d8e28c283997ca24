package ledger

import "sort"

// Balance is the activity of a single account over a window.
type Balance struct {
	Code          string
	Name          string
	Type          string
	Nature        Nature
	OpeningDebit  float64
	OpeningCredit float64
	Debit         float64
	Credit        float64
}

// Summary totals every account sharing a code prefix of one level.
type Summary struct {
	Code          string
	Name          string
	Type          string
	Nature        Nature
	OpeningDebit  float64
	OpeningCredit float64
	Debit         float64
	Credit        float64
	ClosingDebit  float64
	ClosingCredit float64
	Balance       float64
	Side          Side
}

// Summarize folds balances into one row per prefix of the given code
// length. names resolves a prefix to its account name and nature; prefixes
// it does not know inherit them from the first balance folded in.
func Summarize(prefixLen int, balances []Balance, names map[string]Balance) []Summary {
	groups := make(map[string]*Summary)
	var keys []string
	for _, b := range balances {
		key := b.Code
		if prefixLen > 0 && len(key) > prefixLen {
			key = key[:prefixLen]
		}
		s, ok := groups[key]
		if !ok {
			s = &Summary{Code: key, Name: b.Name, Type: b.Type, Nature: b.Nature}
			if n, found := names[key]; found {
				s.Name = n.Name
				if n.Nature != "" {
					s.Nature = n.Nature
				}
				if n.Type != "" {
					s.Type = n.Type
				}
			}
			groups[key] = s
			keys = append(keys, key)
		}
		s.OpeningDebit = round2(s.OpeningDebit + b.OpeningDebit)
		s.OpeningCredit = round2(s.OpeningCredit + b.OpeningCredit)
		s.Debit = round2(s.Debit + b.Debit)
		s.Credit = round2(s.Credit + b.Credit)
	}
	sort.Strings(keys)
	out := make([]Summary, 0, len(keys))
	for _, key := range keys {
		s := groups[key]
		s.ClosingDebit = round2(s.OpeningDebit + s.Debit)
		s.ClosingCredit = round2(s.OpeningCredit + s.Credit)
		net := s.ClosingDebit - s.ClosingCredit
		s.Balance = abs2(net)
		s.Side = SideOf(net)
		out = append(out, *s)
	}
	return out
}
