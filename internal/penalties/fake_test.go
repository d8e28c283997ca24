package penalties

import (
	"context"
	"sort"
	"time"

	"github.com/estatebook/estatebook/internal/integration"
	"github.com/estatebook/estatebook/internal/installments"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/shared"
)

type memRepo struct {
	next       int64
	candidates []Candidate
	items      map[int64]Penalty
}

func newMemRepo() *memRepo {
	project := projects.Project{ID: 1, Name: "Tower A", PenaltyRate: 0.001, GraceDays: 5}
	return &memRepo{
		items: map[int64]Penalty{},
		candidates: []Candidate{
			{Project: project, Installment: installments.UserInstallment{
				ID: 1, ProjectID: 1, ProjectName: "Tower A", UserID: 2, UserName: "Budi", Title: "Foundation works",
				DueDate: day(2026, 3, 1), ShareAmount: 1000, Status: installments.StatusPending,
			}},
			{Project: project, Installment: installments.UserInstallment{
				ID: 2, ProjectID: 1, ProjectName: "Tower A", UserID: 3, UserName: "Citra", Title: "Roof",
				DueDate: day(2026, 3, 8), ShareAmount: 1000, Status: installments.StatusPartial, PaidAmount: 100,
			}},
		},
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (m *memRepo) Candidates(_ context.Context, asOf time.Time) ([]Candidate, error) {
	var out []Candidate
	for _, c := range m.candidates {
		if c.Installment.DueDate.Before(asOf) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memRepo) LockByInstallment(_ context.Context, installmentID int64) (Penalty, error) {
	for _, p := range m.items {
		if p.UserInstallmentID == installmentID {
			return p, nil
		}
	}
	return Penalty{}, ErrNotFound
}

func (m *memRepo) Insert(ctx context.Context, p Penalty) (Penalty, bool, error) {
	if _, err := m.LockByInstallment(ctx, p.UserInstallmentID); err == nil {
		return Penalty{}, false, nil
	}
	m.next++
	p.ID = m.next
	p.Status = StatusAccrued
	for _, c := range m.candidates {
		if c.Installment.ID == p.UserInstallmentID {
			p.UserName, p.ProjectName, p.InstallmentTitle, p.DueDate = c.Installment.UserName, c.Project.Name, c.Installment.Title, c.Installment.DueDate
		}
	}
	m.items[p.ID] = p
	return p, true, nil
}

func (m *memRepo) UpdateAccrual(_ context.Context, id int64, c Computation, asOf time.Time) error {
	p := m.items[id]
	p.DaysLate, p.DailyRate, p.Amount, p.AsOf = c.DaysLate, c.DailyRate, c.Amount, asOf
	m.items[id] = p
	return nil
}

func (m *memRepo) SetJournalEntry(_ context.Context, id, entryID int64) error {
	p := m.items[id]
	p.JournalEntryID = &entryID
	m.items[id] = p
	return nil
}

func (m *memRepo) Get(_ context.Context, id int64) (Penalty, error) {
	p, ok := m.items[id]
	if !ok {
		return Penalty{}, ErrNotFound
	}
	return p, nil
}

func (m *memRepo) Lock(ctx context.Context, id int64) (Penalty, error) {
	return m.Get(ctx, id)
}

func (m *memRepo) List(_ context.Context, f ListFilter) ([]Penalty, int, error) {
	var out []Penalty
	for _, p := range m.items {
		if (f.UserID > 0 && p.UserID != f.UserID) || (f.ProjectID > 0 && p.ProjectID != f.ProjectID) || (f.Status != "" && p.Status != f.Status) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memRepo) MarkWaived(_ context.Context, id int64, reason string) error {
	p := m.items[id]
	if p.Status == StatusWaived {
		return ErrAlreadyWaived
	}
	p.Status, p.WaiveReason = StatusWaived, reason
	m.items[id] = p
	return nil
}

type recordingPoster struct {
	accrued []integration.PenaltyAccrued
	waived  []integration.PenaltyWaived
}

func (p *recordingPoster) HandlePenaltyAccrued(_ context.Context, evt integration.PenaltyAccrued) (int64, error) {
	p.accrued = append(p.accrued, evt)
	return int64(300 + len(p.accrued)), nil
}

func (p *recordingPoster) HandlePenaltyWaived(_ context.Context, evt integration.PenaltyWaived) (int64, error) {
	p.waived = append(p.waived, evt)
	return int64(400 + len(p.waived)), nil
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
