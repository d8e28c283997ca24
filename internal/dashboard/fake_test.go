package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/estatebook/estatebook/internal/accounting"
	"github.com/estatebook/estatebook/internal/accounting/ledger"
	"github.com/estatebook/estatebook/internal/documents"
	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/payments"
	"github.com/estatebook/estatebook/internal/penalties"
	"github.com/estatebook/estatebook/internal/projects"
)

func day(m time.Month, d int) time.Time {
	return time.Date(2026, m, d, 0, 0, 0, 0, time.UTC)
}

type stubRepo struct {
	mu      sync.Mutex
	calls   map[string]int
	summary Summary
}

func (s *stubRepo) hit(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[name]++
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		calls: map[string]int{},
		summary: Summary{
			Projects: 2, Members: 3, Billed: 3000, Collected: 1250, Outstanding: 1750,
			OverdueCount: 2, OverdueAmount: 900, AccruedPenalties: 12.5,
		},
	}
}

func (s *stubRepo) Summary(context.Context, time.Time) (Summary, error) {
	s.hit("summary")
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary, nil
}

func (s *stubRepo) Progress(context.Context, time.Time) ([]ProjectProgress, error) {
	s.hit("progress")
	return []ProjectProgress{
		{ProjectID: 1, Code: "TWR-A", Name: "Tower A", Status: "ACTIVE", Members: 3, Billed: 2000, Collected: 1250, Overdue: 500},
		{ProjectID: 2, Code: "TWR-B", Name: "Tower B", Status: "PLANNING", Billed: 1000},
	}, nil
}

func (s *stubRepo) Trend(_ context.Context, from, to time.Time) ([]MonthPoint, error) {
	s.hit("trend")
	var out []MonthPoint
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		out = append(out, MonthPoint{Month: m})
	}
	out[len(out)-1].Billed = 1000
	out[len(out)-1].Collected = 750
	return out, nil
}

type stubInstallments struct{}

func (stubInstallments) Upcoming(_ context.Context, asOf time.Time, days int) ([]installments.UserInstallment, error) {
	return []installments.UserInstallment{
		{ID: 9, UserName: "Citra", ProjectName: "Tower A", Title: "Roof", DueDate: asOf.AddDate(0, 0, days-1), ShareAmount: 400},
	}, nil
}

func (stubInstallments) ForUser(_ context.Context, userID int64) ([]installments.UserInstallment, error) {
	if userID != 2 {
		return nil, nil
	}
	return []installments.UserInstallment{
		{ID: 3, Title: "Finishing", ProjectName: "Tower A", DueDate: day(5, 1), ShareAmount: 500, Status: installments.StatusPending},
		{ID: 1, Title: "Foundation", ProjectName: "Tower A", DueDate: day(3, 1), ShareAmount: 500, PaidAmount: 500, Status: installments.StatusPaid},
		{ID: 2, Title: "Structure", ProjectName: "Tower A", DueDate: day(4, 1), ShareAmount: 500, PaidAmount: 200, Status: installments.StatusPartial},
	}, nil
}

type stubPayments struct{}

func (stubPayments) Recent(context.Context, int) ([]payments.Payment, error) {
	return []payments.Payment{{ID: 7, UserName: "Budi", InstallmentTitle: "Foundation", Amount: 500, PaidAt: day(3, 1)}}, nil
}

type stubMemberships struct{}

func (stubMemberships) ProjectsForUser(context.Context, int64) ([]projects.Membership, error) {
	return []projects.Membership{{Project: projects.Project{ID: 1, Code: "TWR-A", Name: "Tower A", Status: projects.StatusActive}, SharePercent: 33.3333, UnitNumber: "A-101"}}, nil
}

type stubPenalties struct{}

func (stubPenalties) ForUser(context.Context, int64) ([]penalties.Penalty, error) {
	return []penalties.Penalty{
		{InstallmentTitle: "Structure", DaysLate: 10, Amount: 5, Status: penalties.StatusAccrued},
		{InstallmentTitle: "Foundation", DaysLate: 2, Amount: 1, Status: penalties.StatusWaived},
	}, nil
}

type stubDocuments struct{}

func (stubDocuments) ForUser(context.Context, int64) ([]documents.Document, error) {
	return []documents.Document{{ID: 1, Title: "Sale agreement", SizeBytes: 2048}}, nil
}

type stubLedger struct {
	missing bool
}

func (s stubLedger) AccountLedger(_ context.Context, _ int, code string, _ accounting.JournalFilter) (accounting.LedgerView, error) {
	if s.missing {
		return accounting.LedgerView{}, accounting.ErrAccountNotFound
	}
	return accounting.LedgerView{Report: ledger.AccountReport{
		Code:   code,
		Signed: 800,
		Lines: []ledger.Line{
			{Row: ledger.Row{Number: 11, Date: day(3, 1), Memo: "Foundation billed", Debit: 500}, Balance: 500},
			{Row: ledger.Row{Number: 14, Date: day(3, 2), Memo: "Payment received", Credit: 500}, Balance: 0},
		},
	}}, nil
}

func fullSources() Sources {
	return Sources{
		Installments: stubInstallments{},
		Payments:     stubPayments{},
		Memberships:  stubMemberships{},
		Penalties:    stubPenalties{},
		Documents:    stubDocuments{},
		Ledger:       stubLedger{},
	}
}
