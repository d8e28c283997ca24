package accounting

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/estatebook/estatebook/internal/accounting/ledger"
)

// memStore is an in-memory TxRepository. WithTx hands out the same store, so
// a failing callback leaves partial writes behind; tests only assert on the
// successful paths or on rejected input.
type memStore struct {
	accounts map[string]Account
	nextAcc  int64
	entries  []JournalEntry
	links    map[string]int64
	mappings map[string]int64
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]Account{}, links: map[string]int64{}, mappings: map[string]int64{}}
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memStore) byID(id int64) (Account, bool) {
	for _, a := range m.accounts {
		if a.ID == id {
			return a, true
		}
	}
	return Account{}, false
}

func (m *memStore) ListAccounts(context.Context) ([]Account, error) {
	out := make([]Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *memStore) AccountsByCodes(_ context.Context, codes []string) (map[string]Account, error) {
	out := map[string]Account{}
	for _, c := range codes {
		if a, ok := m.accounts[c]; ok {
			out[c] = a
		}
	}
	return out, nil
}

func (m *memStore) AccountsByIDs(_ context.Context, ids []int64) (map[int64]Account, error) {
	out := map[int64]Account{}
	for _, id := range ids {
		if a, ok := m.byID(id); ok {
			out[id] = a
		}
	}
	return out, nil
}

func (m *memStore) UpsertAccount(_ context.Context, a Account) (Account, bool, error) {
	if existing, ok := m.accounts[a.Code]; ok {
		return existing, false, nil
	}
	m.nextAcc++
	a.ID = m.nextAcc
	m.accounts[a.Code] = a
	return a, true, nil
}

func (m *memStore) UpdateAccount(_ context.Context, id int64, name string, active bool) error {
	a, ok := m.byID(id)
	if !ok {
		return ErrAccountNotFound
	}
	a.Name = name
	a.IsActive = active
	m.accounts[a.Code] = a
	return nil
}

func (m *memStore) InsertJournalEntry(_ context.Context, in PostingInput) (JournalEntry, error) {
	e := JournalEntry{
		ID:           int64(len(m.entries) + 1),
		Number:       int64(len(m.entries) + 1),
		Date:         in.Date,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Memo:         in.Memo,
		PostedBy:     in.PostedBy,
		Status:       JournalStatusPosted,
	}
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memStore) InsertJournalLines(_ context.Context, entryID int64, lines []PostingLineInput) error {
	e := &m.entries[entryID-1]
	for _, l := range lines {
		acc, _ := m.byID(l.AccountID)
		e.Lines = append(e.Lines, JournalLine{
			ID:          int64(len(e.Lines)+1) + entryID*100,
			JournalID:   entryID,
			AccountID:   l.AccountID,
			AccountCode: acc.Code,
			AccountName: acc.Name,
			Description: l.Description,
			Debit:       l.Debit,
			Credit:      l.Credit,
		})
	}
	return nil
}

func linkKey(module string, ref uuid.UUID) string {
	return module + "|" + ref.String()
}

func (m *memStore) LinkSource(_ context.Context, module string, ref uuid.UUID, entryID int64) error {
	if _, ok := m.links[linkKey(module, ref)]; ok {
		return ErrSourceConflict
	}
	m.links[linkKey(module, ref)] = entryID
	return nil
}

func (m *memStore) LinkedEntryID(_ context.Context, module string, ref uuid.UUID) (int64, error) {
	return m.links[linkKey(module, ref)], nil
}

func (m *memStore) GetJournalWithLines(_ context.Context, id int64) (JournalEntry, error) {
	if id <= 0 || int(id) > len(m.entries) {
		return JournalEntry{}, ErrJournalNotFound
	}
	return m.entries[id-1], nil
}

func (m *memStore) ListJournalEntries(_ context.Context, _ JournalFilter, limit, offset int) ([]JournalEntry, int, error) {
	out := append([]JournalEntry(nil), m.entries...)
	if offset > len(out) {
		offset = len(out)
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, len(m.entries), nil
}

func (m *memStore) ListMappings(context.Context) ([]AccountMapping, error) {
	var out []AccountMapping
	for k, id := range m.mappings {
		parts := strings.SplitN(k, "/", 2)
		acc, _ := m.byID(id)
		out = append(out, AccountMapping{Module: parts[0], Key: parts[1], AccountID: id, AccountCode: acc.Code})
	}
	return out, nil
}

func (m *memStore) GetMapping(_ context.Context, module, key string) (AccountMapping, error) {
	id, ok := m.mappings[strings.ToUpper(module)+"/"+strings.ToUpper(key)]
	if !ok {
		return AccountMapping{}, ErrMappingNotFound
	}
	acc, _ := m.byID(id)
	return AccountMapping{Module: module, Key: key, AccountID: id, AccountCode: acc.Code, AccountName: acc.Name}, nil
}

func (m *memStore) UpsertMapping(_ context.Context, module, key string, accountID int64) error {
	m.mappings[strings.ToUpper(module)+"/"+strings.ToUpper(key)] = accountID
	return nil
}

func inWindow(d time.Time, f JournalFilter) bool {
	if !f.From.IsZero() && d.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && d.After(f.To) {
		return false
	}
	return true
}

func (m *memStore) LedgerRows(_ context.Context, prefix string, f JournalFilter) ([]ledger.Row, error) {
	var out []ledger.Row
	for _, e := range m.entries {
		if !inWindow(e.Date, f) {
			continue
		}
		for _, l := range e.Lines {
			if !ledger.Covers(prefix, l.AccountCode) {
				continue
			}
			out = append(out, ledger.Row{
				EntryID: e.ID, Number: e.Number, Date: e.Date, Memo: e.Memo, SourceModule: e.SourceModule,
				LineID: l.ID, AccountCode: l.AccountCode, AccountName: l.AccountName,
				Description: l.Description, Debit: l.Debit, Credit: l.Credit,
			})
		}
	}
	return out, nil
}

func (m *memStore) OpeningBalance(_ context.Context, prefix string, before time.Time) (ledger.Opening, error) {
	var open ledger.Opening
	if before.IsZero() {
		return open, nil
	}
	for _, e := range m.entries {
		if !e.Date.Before(before) {
			continue
		}
		for _, l := range e.Lines {
			if ledger.Covers(prefix, l.AccountCode) {
				open.Debit += l.Debit
				open.Credit += l.Credit
			}
		}
	}
	return open, nil
}

func (m *memStore) AccountBalances(_ context.Context, f JournalFilter) ([]ledger.Balance, error) {
	byCode := map[string]*ledger.Balance{}
	var codes []string
	for _, e := range m.entries {
		if !f.To.IsZero() && e.Date.After(f.To) {
			continue
		}
		for _, l := range e.Lines {
			acc := m.accounts[l.AccountCode]
			b, ok := byCode[l.AccountCode]
			if !ok {
				b = &ledger.Balance{Code: acc.Code, Name: acc.Name, Type: string(acc.Type), Nature: acc.Nature}
				byCode[l.AccountCode] = b
				codes = append(codes, l.AccountCode)
			}
			if !f.From.IsZero() && e.Date.Before(f.From) {
				b.OpeningDebit += l.Debit
				b.OpeningCredit += l.Credit
			} else {
				b.Debit += l.Debit
				b.Credit += l.Credit
			}
		}
	}
	sort.Strings(codes)
	out := make([]ledger.Balance, 0, len(codes))
	for _, c := range codes {
		out = append(out, *byCode[c])
	}
	return out, nil
}

func (m *memStore) UnbalancedEntries(context.Context) ([]IntegrityIssue, error) {
	var out []IntegrityIssue
	for _, e := range m.entries {
		d, c := e.Totals()
		if d != c || len(e.Lines) < 2 {
			out = append(out, IntegrityIssue{EntryID: e.ID, Number: e.Number, Debit: d, Credit: c})
		}
	}
	return out, nil
}
