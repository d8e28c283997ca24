// Package export writes the books and statements as CSV or PDF files.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/estatebook/estatebook/internal/accounting/ledger"
	"github.com/estatebook/estatebook/internal/accounting/reports"
)

// WriteDaybookCSV emits one row per journal line, grouped by entry.
func WriteDaybookCSV(w io.Writer, report ledger.DaybookReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Entry", "Source", "Memo", "Account", "Account Name", "Description", "Debit", "Credit"}); err != nil {
		return err
	}
	for _, entry := range report.Entries {
		for _, line := range entry.Lines {
			if err := writer.Write([]string{
				line.Date.Format("2006-01-02"),
				strconv.FormatInt(entry.Number, 10),
				entry.SourceModule,
				entry.Memo,
				line.AccountCode,
				line.AccountName,
				line.Description,
				formatFloat(line.Debit),
				formatFloat(line.Credit),
			}); err != nil {
				return err
			}
		}
	}
	if err := writer.Write([]string{"", "", "", "Total", "", "", "", formatFloat(report.TotalDebit), formatFloat(report.TotalCredit)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteLedgerCSV emits an account ledger with its opening and closing rows.
func WriteLedgerCSV(w io.Writer, report ledger.AccountReport) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Date", "Entry", "Account", "Description", "Debit", "Credit", "Running Debit", "Running Credit", "Balance", "Side"}); err != nil {
		return err
	}
	if err := writer.Write([]string{"", "", report.Code, "Opening balance", "", "", formatFloat(report.OpeningDebit), formatFloat(report.OpeningCredit), formatFloat(report.OpeningBalance), string(report.OpeningSide)}); err != nil {
		return err
	}
	for _, line := range report.Lines {
		desc := line.Description
		if desc == "" {
			desc = line.Memo
		}
		if err := writer.Write([]string{
			line.Date.Format("2006-01-02"),
			strconv.FormatInt(line.Number, 10),
			line.AccountCode,
			desc,
			formatFloat(line.Debit),
			formatFloat(line.Credit),
			formatFloat(line.RunningDebit),
			formatFloat(line.RunningCredit),
			formatFloat(line.Balance),
			string(line.Side),
		}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"", "", report.Code, "Closing balance", formatFloat(report.PeriodDebit), formatFloat(report.PeriodCredit), formatFloat(report.ClosingDebit), formatFloat(report.ClosingCredit), formatFloat(report.ClosingBalance), string(report.ClosingSide)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteTrialBalanceCSV prints every account of the trial balance.
func WriteTrialBalanceCSV(w io.Writer, tb reports.TrialBalance) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Group", "Code", "Name", "Opening", "Debit", "Credit", "Closing Debit", "Closing Credit"}); err != nil {
		return err
	}
	for _, grp := range tb.Groups {
		for _, acc := range grp.Accounts {
			if err := writer.Write([]string{
				grp.Key,
				acc.Code,
				acc.Name,
				formatFloat(acc.Opening),
				formatFloat(acc.Debit),
				formatFloat(acc.Credit),
				formatFloat(acc.ClosingDebit),
				formatFloat(acc.ClosingCredit),
			}); err != nil {
				return err
			}
		}
	}
	if err := writer.Write([]string{"", "", "Total", formatFloat(tb.TotalOpening), formatFloat(tb.TotalDebit), formatFloat(tb.TotalCredit), formatFloat(tb.TotalClosingDebit), formatFloat(tb.TotalClosingCredit)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteProfitAndLossCSV prints revenue and expense sections.
func WriteProfitAndLossCSV(w io.Writer, pl reports.ProfitAndLoss) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Section", "Code", "Name", "Amount"}); err != nil {
		return err
	}
	sections := []struct {
		name string
		sec  reports.ProfitAndLossSection
	}{{"Revenue", pl.Revenue}, {"Expense", pl.Expense}}
	for _, s := range sections {
		for _, acc := range s.sec.Accounts {
			if err := writer.Write([]string{s.name, acc.Code, acc.Name, formatFloat(acc.Amount)}); err != nil {
				return err
			}
		}
		if err := writer.Write([]string{s.name, "", "Total", formatFloat(s.sec.Total)}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"", "", "Net income", formatFloat(pl.NetIncome)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// WriteBalanceSheetCSV prints assets, liabilities and equity.
func WriteBalanceSheetCSV(w io.Writer, bs reports.BalanceSheet) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write([]string{"Section", "Code", "Name", "Amount"}); err != nil {
		return err
	}
	sections := []struct {
		name string
		sec  reports.BalanceSheetSection
	}{{"Assets", bs.Assets}, {"Liabilities", bs.Liabilities}, {"Equity", bs.Equity}}
	for _, s := range sections {
		for _, acc := range s.sec.Accounts {
			if err := writer.Write([]string{s.name, acc.Code, acc.Name, formatFloat(acc.Balance)}); err != nil {
				return err
			}
		}
		if err := writer.Write([]string{s.name, "", "Total", formatFloat(s.sec.Total)}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"", "", "Liabilities and equity", formatFloat(bs.TotalLiabilitiesAndEquity)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
