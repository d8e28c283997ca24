package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/estatebook/estatebook/testing"
)

func day(d int) time.Time {
	return time.Date(2026, time.March, d, 0, 0, 0, 0, time.UTC)
}

func sampleRows() []Row {
	return []Row{
		// posted out of order on purpose
		{EntryID: 2, Number: 2, Date: day(5), LineID: 3, AccountCode: "110101", AccountName: "Cash", Debit: 400},
		{EntryID: 2, Number: 2, Date: day(5), LineID: 4, AccountCode: "1103000000001", AccountName: "Receivable - Ana", Credit: 400},
		{EntryID: 1, Number: 1, Date: day(1), LineID: 1, AccountCode: "1103000000001", AccountName: "Receivable - Ana", Debit: 1000},
		{EntryID: 1, Number: 1, Date: day(1), LineID: 2, AccountCode: "210101", AccountName: "Advances", Credit: 1000},
		{EntryID: 3, Number: 3, Date: day(9), LineID: 5, AccountCode: "1103000000002", AccountName: "Receivable - Budi", Debit: 250.25},
		{EntryID: 3, Number: 3, Date: day(9), LineID: 6, AccountCode: "420101", AccountName: "Penalty income", Credit: 250.25},
	}
}

func TestDaybookGroupsEntriesChronologically(t *testing.T) {
	report := Daybook(sampleRows())

	require.Len(t, report.Entries, 3)
	assert.Equal(t, []int64{1, 2, 3}, []int64{report.Entries[0].Number, report.Entries[1].Number, report.Entries[2].Number})
	assert.Len(t, report.Entries[0].Lines, 2)
	assert.Equal(t, 1650.25, report.TotalDebit)
	assert.Equal(t, 1650.25, report.TotalCredit)
	assert.True(t, report.Balanced)
	assert.Empty(t, report.Unbalanced())
}

func TestDaybookFlagsUnbalancedEntry(t *testing.T) {
	rows := sampleRows()
	rows = append(rows, Row{EntryID: 4, Number: 4, Date: day(10), LineID: 7, AccountCode: "110101", Debit: 10})

	report := Daybook(rows)
	assert.False(t, report.Balanced)
	bad := report.Unbalanced()
	require.Len(t, bad, 1)
	assert.Equal(t, int64(4), bad[0].Number)
}

func TestAccountLedgerRunningBalances(t *testing.T) {
	report := AccountLedger("1103", NatureDebit, Opening{Debit: 100}, sampleRows())

	require.Len(t, report.Lines, 3)
	assert.Equal(t, SideDebit, report.OpeningSide)
	assert.Equal(t, 100.0, report.OpeningBalance)

	first := report.Lines[0]
	assert.Equal(t, 1100.0, first.RunningDebit)
	assert.Equal(t, 0.0, first.RunningCredit)
	assert.Equal(t, 1100.0, first.Balance)
	assert.Equal(t, SideDebit, first.Side)

	second := report.Lines[1]
	assert.Equal(t, 1100.0, second.RunningDebit)
	assert.Equal(t, 400.0, second.RunningCredit)
	assert.Equal(t, 700.0, second.Balance)

	last := report.Lines[2]
	assert.Equal(t, 950.25, last.Balance)
	assert.Equal(t, 950.25, report.ClosingBalance)
	assert.Equal(t, 950.25, report.Signed)
	assert.Equal(t, 1250.25, report.PeriodDebit)
	assert.Equal(t, 400.0, report.PeriodCredit)
}

func TestAccountLedgerDetailCodeAndCreditNature(t *testing.T) {
	report := AccountLedger("1103000000001", NatureDebit, Opening{}, sampleRows())
	require.Len(t, report.Lines, 2)
	assert.Equal(t, 600.0, report.ClosingBalance)

	advances := AccountLedger("21", NatureCredit, Opening{}, sampleRows())
	require.Len(t, advances.Lines, 1)
	assert.Equal(t, SideCredit, advances.ClosingSide)
	assert.Equal(t, 1000.0, advances.Signed)
}

func TestAccountLedgerDetailCodeIgnoresLongerCodes(t *testing.T) {
	rows := []Row{
		{EntryID: 1, Number: 1, Date: day(1), LineID: 1, AccountCode: "110310000", Debit: 100},
		{EntryID: 2, Number: 2, Date: day(2), LineID: 2, AccountCode: "1103100000", Debit: 900},
	}
	report := AccountLedger("110310000", NatureDebit, Opening{}, rows)
	require.Len(t, report.Lines, 1)
	assert.Equal(t, 100.0, report.ClosingDebit)

	parent := AccountLedger("1103", NatureDebit, Opening{}, rows)
	assert.Len(t, parent.Lines, 2)
}

func TestCovers(t *testing.T) {
	assert.True(t, Covers("", "110101"))
	assert.True(t, Covers("11", "110101"))
	assert.True(t, Covers("1101", "110101"))
	assert.True(t, Covers("110101", "110101"))
	assert.False(t, Covers("110101", "1101010"))
	assert.False(t, Covers("12", "110101"))
}

func TestAccountLedgerSettledAccountIsNil(t *testing.T) {
	rows := []Row{
		{EntryID: 1, Number: 1, Date: day(1), LineID: 1, AccountCode: "110101", Debit: 10.1},
		{EntryID: 2, Number: 2, Date: day(2), LineID: 2, AccountCode: "110101", Credit: 10.1},
	}
	report := AccountLedger("110101", NatureDebit, Opening{}, rows)
	assert.Equal(t, SideNil, report.ClosingSide)
	assert.Equal(t, 0.0, report.ClosingBalance)
}

func TestSummarizeByPrefix(t *testing.T) {
	balances := []Balance{
		{Code: "110101", Name: "Cash", Type: "ASSET", Nature: NatureDebit, Debit: 400},
		{Code: "1103000000001", Name: "Receivable - Ana", Type: "ASSET", Nature: NatureDebit, Debit: 1000, Credit: 400},
		{Code: "210101", Name: "Advances", Type: "LIABILITY", Nature: NatureCredit, Credit: 1000},
	}
	names := map[string]Balance{"11": {Name: "Current assets"}, "21": {Name: "Current liabilities"}}

	out := Summarize(2, balances, names)
	require.Len(t, out, 2)
	assert.Equal(t, "11", out[0].Code)
	assert.Equal(t, "Current assets", out[0].Name)
	assert.Equal(t, 1400.0, out[0].Debit)
	assert.Equal(t, 1000.0, out[0].Balance)
	assert.Equal(t, SideDebit, out[0].Side)
	assert.Equal(t, SideCredit, out[1].Side)

	detail := Summarize(0, balances, nil)
	assert.Len(t, detail, 3)
}
