package ledger

// Line is a ledger row with the running totals after it was applied.
type Line struct {
	Row
	RunningDebit  float64
	RunningCredit float64
	Balance       float64
	Side          Side
}

// AccountReport is the ledger of one detail account or of every account
// under a shorter code.
type AccountReport struct {
	Code           string
	Nature         Nature
	OpeningDebit   float64
	OpeningCredit  float64
	OpeningBalance float64
	OpeningSide    Side
	Lines          []Line
	PeriodDebit    float64
	PeriodCredit   float64
	ClosingDebit   float64
	ClosingCredit  float64
	ClosingBalance float64
	ClosingSide    Side
	// Signed is the closing balance on the nature side, negative when the
	// account runs against its nature.
	Signed float64
}

// AccountLedger keeps the rows covered by code and
// accumulates running debit, running credit and the resulting balance,
// starting from opening.
func AccountLedger(code string, nature Nature, opening Opening, rows []Row) AccountReport {
	report := AccountReport{
		Code:          code,
		Nature:        nature,
		OpeningDebit:  round2(opening.Debit),
		OpeningCredit: round2(opening.Credit),
	}
	openNet := report.OpeningDebit - report.OpeningCredit
	report.OpeningBalance = abs2(openNet)
	report.OpeningSide = SideOf(openNet)

	matched := make([]Row, 0, len(rows))
	for _, row := range rows {
		if Covers(code, row.AccountCode) {
			matched = append(matched, row)
		}
	}
	SortRows(matched)

	runDebit, runCredit := report.OpeningDebit, report.OpeningCredit
	for _, row := range matched {
		runDebit = round2(runDebit + row.Debit)
		runCredit = round2(runCredit + row.Credit)
		report.PeriodDebit = round2(report.PeriodDebit + row.Debit)
		report.PeriodCredit = round2(report.PeriodCredit + row.Credit)
		net := runDebit - runCredit
		report.Lines = append(report.Lines, Line{
			Row:           row,
			RunningDebit:  runDebit,
			RunningCredit: runCredit,
			Balance:       abs2(net),
			Side:          SideOf(net),
		})
	}
	report.ClosingDebit = runDebit
	report.ClosingCredit = runCredit
	net := runDebit - runCredit
	report.ClosingBalance = abs2(net)
	report.ClosingSide = SideOf(net)
	report.Signed = Signed(nature, net)
	return report
}

func abs2(v float64) float64 {
	if v < 0 {
		v = -v
	}
	return round2(v)
}
