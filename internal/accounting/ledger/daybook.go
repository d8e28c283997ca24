package ledger

import "time"

// DaybookEntry groups the lines of one journal entry.
type DaybookEntry struct {
	EntryID      int64
	Number       int64
	Date         time.Time
	Memo         string
	SourceModule string
	Lines        []Row
	Debit        float64
	Credit       float64
	Balanced     bool
}

// DaybookReport is the chronological journal.
type DaybookReport struct {
	Entries     []DaybookEntry
	TotalDebit  float64
	TotalCredit float64
	Balanced    bool
}

// Daybook groups rows per entry in posting order and totals each side.
func Daybook(rows []Row) DaybookReport {
	sorted := append([]Row(nil), rows...)
	SortRows(sorted)

	report := DaybookReport{Balanced: true}
	index := make(map[int64]int)
	for _, row := range sorted {
		pos, ok := index[row.EntryID]
		if !ok {
			report.Entries = append(report.Entries, DaybookEntry{
				EntryID:      row.EntryID,
				Number:       row.Number,
				Date:         row.Date,
				Memo:         row.Memo,
				SourceModule: row.SourceModule,
			})
			pos = len(report.Entries) - 1
			index[row.EntryID] = pos
		}
		entry := &report.Entries[pos]
		entry.Lines = append(entry.Lines, row)
		entry.Debit = round2(entry.Debit + row.Debit)
		entry.Credit = round2(entry.Credit + row.Credit)
		report.TotalDebit = round2(report.TotalDebit + row.Debit)
		report.TotalCredit = round2(report.TotalCredit + row.Credit)
	}
	for i := range report.Entries {
		e := &report.Entries[i]
		e.Balanced = e.Debit == e.Credit
		if !e.Balanced {
			report.Balanced = false
		}
	}
	if report.TotalDebit != report.TotalCredit {
		report.Balanced = false
	}
	return report
}

// Unbalanced returns the entries whose debits and credits differ.
func (r DaybookReport) Unbalanced() []DaybookEntry {
	var out []DaybookEntry
	for _, e := range r.Entries {
		if !e.Balanced {
			out = append(out, e)
		}
	}
	return out
}
