package payments

import (
	"context"
	"sort"
	"time"

	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/integration"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/shared"
)

type memRepo struct {
	next  int64
	items map[int64]Payment
	insts *stubInstallments
}

func newMemRepo(insts *stubInstallments) *memRepo {
	return &memRepo{items: map[int64]Payment{}, insts: insts}
}

func (m *memRepo) Insert(_ context.Context, p Payment) (Payment, error) {
	m.next++
	p.ID = m.next
	if inst, ok := m.insts.items[p.UserInstallmentID]; ok {
		p.InstallmentTitle, p.ProjectName, p.UserName = inst.Title, inst.ProjectName, inst.UserName
	}
	m.items[p.ID] = p
	return p, nil
}

func (m *memRepo) Get(_ context.Context, id int64) (Payment, error) {
	p, ok := m.items[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]Payment, int, error) {
	var out []Payment
	for _, p := range m.items {
		switch {
		case f.ProjectID > 0 && p.ProjectID != f.ProjectID,
			f.UserID > 0 && p.UserID != f.UserID,
			f.InstallmentID > 0 && p.UserInstallmentID != f.InstallmentID,
			f.From != nil && p.PaidAt.Before(*f.From),
			f.To != nil && p.PaidAt.After(*f.To):
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	total := len(out)
	if f.PerPage > 0 && len(out) > f.PerPage {
		out = out[:f.PerPage]
	}
	return out, total, nil
}

func (m *memRepo) SetJournalEntry(_ context.Context, id, entryID int64) error {
	p := m.items[id]
	p.JournalEntryID = &entryID
	m.items[id] = p
	return nil
}

type stubInstallments struct {
	items map[int64]installments.UserInstallment
}

func newStubInstallments() *stubInstallments {
	due := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return &stubInstallments{items: map[int64]installments.UserInstallment{
		1: {ID: 1, DefinitionID: 1, ProjectID: 1, ProjectName: "Tower A", UserID: 2, UserName: "Budi", Title: "Foundation works", DueDate: due, ShareAmount: 500, Status: installments.StatusPending},
		2: {ID: 2, DefinitionID: 1, ProjectID: 1, ProjectName: "Tower A", UserID: 3, UserName: "Citra", Title: "Foundation works", DueDate: due, ShareAmount: 500, PaidAmount: 500, Status: installments.StatusPaid},
	}}
}

func (s *stubInstallments) Get(_ context.Context, id int64) (installments.UserInstallment, error) {
	inst, ok := s.items[id]
	if !ok {
		return installments.UserInstallment{}, installments.ErrNotFound
	}
	return inst, nil
}

func (s *stubInstallments) Lock(ctx context.Context, id int64) (installments.UserInstallment, error) {
	return s.Get(ctx, id)
}

func (s *stubInstallments) ApplyPayment(_ context.Context, inst installments.UserInstallment, amount float64, paidAt time.Time) (installments.UserInstallment, error) {
	if amount > inst.Outstanding() {
		return installments.UserInstallment{}, installments.ErrPaidTooMuch
	}
	inst.PaidAmount = shared.Round2(inst.PaidAmount + amount)
	inst.Status = installments.StatusFor(inst.ShareAmount, inst.PaidAmount)
	if inst.Status == installments.StatusPaid {
		day := shared.DateOnly(paidAt)
		inst.PaidAt = &day
	}
	s.items[inst.ID] = inst
	return inst, nil
}

func (s *stubInstallments) List(_ context.Context, f installments.ListFilter) ([]installments.UserInstallment, shared.Pagination, error) {
	var out []installments.UserInstallment
	for _, inst := range s.items {
		if f.Unpaid && inst.Status == installments.StatusPaid {
			continue
		}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, shared.NewPagination(1, shared.DefaultPerPage, len(out)), nil
}

type stubProjects struct{}

func (stubProjects) List(_ context.Context, _ projects.ListFilter) ([]projects.Project, shared.Pagination, error) {
	return []projects.Project{{ID: 1, Code: "TWR", Name: "Tower A"}}, shared.NewPagination(1, shared.DefaultPerPage, 1), nil
}

type recordingPoster struct {
	events []integration.PaymentRecorded
	err    error
}

func (p *recordingPoster) HandlePaymentRecorded(_ context.Context, evt integration.PaymentRecorded) (int64, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, evt)
	return int64(200 + len(p.events)), nil
}

type memIdempotency struct {
	seen map[string]bool
}

func (m *memIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if m.seen == nil {
		m.seen = map[string]bool{}
	}
	if m.seen[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	m.seen[module+"/"+key] = true
	return nil
}

type countingCache struct {
	bumps int
}

func (c *countingCache) Bump(context.Context) error {
	c.bumps++
	return nil
}

type stubAudit struct {
	actions []string
}

func (s *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	s.actions = append(s.actions, log.Action)
	return nil
}
