package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/estatebook/estatebook/internal/accounting"
	_ "github.com/estatebook/estatebook/testing"
)

type fakeLedger struct {
	posted   []accounting.PostingInput
	links    map[uuid.UUID]int64
	mappings map[string]string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		links: map[uuid.UUID]int64{},
		mappings: map[string]string{
			"PAYMENT/CASH":         "110101",
			"PAYMENT/BANK":         "110201",
			"INSTALLMENT/ADVANCES": "210101",
			"PENALTY/INCOME":       "420101",
		},
	}
}

func (f *fakeLedger) PostJournal(_ context.Context, in accounting.PostingInput) (accounting.JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return accounting.JournalEntry{}, err
	}
	if _, ok := f.links[in.SourceID]; ok {
		return accounting.JournalEntry{}, accounting.ErrSourceAlreadyLinked
	}
	f.posted = append(f.posted, in)
	id := int64(len(f.posted))
	f.links[in.SourceID] = id
	return accounting.JournalEntry{ID: id}, nil
}

func (f *fakeLedger) EntryForSource(_ context.Context, _ string, ref uuid.UUID) (int64, error) {
	return f.links[ref], nil
}

func (f *fakeLedger) ResolveMapping(_ context.Context, module, key string) (accounting.AccountMapping, error) {
	code, ok := f.mappings[module+"/"+key]
	if !ok {
		return accounting.AccountMapping{}, accounting.ErrMappingNotFound
	}
	return accounting.AccountMapping{Module: module, Key: key, AccountCode: code}, nil
}

var due = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func TestInstallmentGeneratedBillsMember(t *testing.T) {
	ledger := newFakeLedger()
	hooks := NewHooks(ledger)
	evt := InstallmentGenerated{InstallmentID: 9, UserID: 12, Title: "Foundation", DueDate: due, Amount: 1500.004}

	id, err := hooks.HandleInstallmentGenerated(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
	require.Len(t, ledger.posted, 1)
	in := ledger.posted[0]
	assert.Equal(t, accounting.SourceInstallment, in.SourceModule)
	assert.Equal(t, "1103000000012", in.Lines[0].AccountCode)
	assert.Equal(t, 1500.0, in.Lines[0].Debit)
	assert.Equal(t, "210101", in.Lines[1].AccountCode)

	again, err := hooks.HandleInstallmentGenerated(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Len(t, ledger.posted, 1)
}

func TestPaymentUsesMethodMapping(t *testing.T) {
	ledger := newFakeLedger()
	hooks := NewHooks(ledger)

	_, err := hooks.HandlePaymentRecorded(context.Background(), PaymentRecorded{PaymentID: 1, UserID: 3, Amount: 200, PaidAt: due, Method: "CASH"})
	require.NoError(t, err)
	_, err = hooks.HandlePaymentRecorded(context.Background(), PaymentRecorded{PaymentID: 2, UserID: 3, Amount: 300, PaidAt: due, Method: "BANK_TRANSFER", Reference: "TRX-1"})
	require.NoError(t, err)

	require.Len(t, ledger.posted, 2)
	assert.Equal(t, "110101", ledger.posted[0].Lines[0].AccountCode)
	assert.Equal(t, "110201", ledger.posted[1].Lines[0].AccountCode)
	assert.Equal(t, "1103000000003", ledger.posted[1].Lines[1].AccountCode)
	assert.Equal(t, 300.0, ledger.posted[1].Lines[1].Credit)
	assert.Contains(t, ledger.posted[1].Memo, "TRX-1")
}

func TestPenaltyDeltasAreKeyedByTotal(t *testing.T) {
	ledger := newFakeLedger()
	hooks := NewHooks(ledger)
	ctx := context.Background()

	_, err := hooks.HandlePenaltyAccrued(ctx, PenaltyAccrued{PenaltyID: 5, UserID: 2, Delta: 10, Total: 10, AsOf: due})
	require.NoError(t, err)
	_, err = hooks.HandlePenaltyAccrued(ctx, PenaltyAccrued{PenaltyID: 5, UserID: 2, Delta: 10, Total: 10, AsOf: due})
	require.NoError(t, err)
	_, err = hooks.HandlePenaltyAccrued(ctx, PenaltyAccrued{PenaltyID: 5, UserID: 2, Delta: 5, Total: 15, AsOf: due.AddDate(0, 0, 1)})
	require.NoError(t, err)
	require.Len(t, ledger.posted, 2)
	assert.Equal(t, "420101", ledger.posted[1].Lines[1].AccountCode)

	_, err = hooks.HandlePenaltyWaived(ctx, PenaltyWaived{PenaltyID: 5, UserID: 2, Amount: 15, Date: due, Reason: "goodwill"})
	require.NoError(t, err)
	require.Len(t, ledger.posted, 3)
	waive := ledger.posted[2]
	assert.Equal(t, "420101", waive.Lines[0].AccountCode)
	assert.Equal(t, 15.0, waive.Lines[0].Debit)
	assert.Equal(t, "Penalty #5 waived: goodwill", waive.Memo)

	id, err := hooks.HandlePenaltyAccrued(ctx, PenaltyAccrued{PenaltyID: 5, UserID: 2, Delta: 0, Total: 15, AsOf: due})
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestMissingMappingFails(t *testing.T) {
	ledger := newFakeLedger()
	delete(ledger.mappings, "PENALTY/INCOME")
	_, err := NewHooks(ledger).HandlePenaltyAccrued(context.Background(), PenaltyAccrued{PenaltyID: 1, UserID: 1, Delta: 3, Total: 3, AsOf: due})
	require.Error(t, err)
	assert.True(t, errors.Is(err, accounting.ErrMappingNotFound))
}

func TestNilHooksAreNoop(t *testing.T) {
	var hooks *Hooks
	id, err := hooks.HandlePaymentRecorded(context.Background(), PaymentRecorded{Amount: 10, PaidAt: due})
	require.NoError(t, err)
	assert.Zero(t, id)
}
