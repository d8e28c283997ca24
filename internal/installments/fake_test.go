package installments

import (
	"context"
	"sort"
	"time"

	"github.com/estatebook/estatebook/internal/integration"
	"github.com/estatebook/estatebook/internal/projects"
	"github.com/estatebook/estatebook/internal/shared"
)

type memRepo struct {
	nextDef     int64
	nextInst    int64
	definitions map[int64]Definition
	items       map[int64]UserInstallment
}

func newMemRepo() *memRepo {
	return &memRepo{definitions: map[int64]Definition{}, items: map[int64]UserInstallment{}}
}

func (m *memRepo) CreateDefinition(_ context.Context, d Definition) (Definition, error) {
	m.nextDef++
	d.ID = m.nextDef
	d.ProjectName = "Tower A"
	m.definitions[d.ID] = d
	return d, nil
}

func (m *memRepo) GetDefinition(_ context.Context, id int64) (Definition, error) {
	d, ok := m.definitions[id]
	if !ok {
		return Definition{}, ErrNotFound
	}
	for _, it := range m.items {
		if it.DefinitionID == id {
			d.Generated++
		}
	}
	return d, nil
}

func (m *memRepo) LockDefinition(ctx context.Context, id int64) (Definition, error) {
	return m.GetDefinition(ctx, id)
}

func (m *memRepo) ListDefinitions(ctx context.Context, projectID int64) ([]Definition, error) {
	var out []Definition
	for id := int64(1); id <= m.nextDef; id++ {
		d, err := m.GetDefinition(ctx, id)
		if err != nil || (projectID > 0 && d.ProjectID != projectID) {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (m *memRepo) ListInstallments(_ context.Context, f ListFilter) ([]UserInstallment, int, error) {
	var out []UserInstallment
	for _, it := range m.items {
		switch {
		case f.ProjectID > 0 && it.ProjectID != f.ProjectID,
			f.UserID > 0 && it.UserID != f.UserID,
			f.DefinitionID > 0 && it.DefinitionID != f.DefinitionID,
			f.Status != "" && it.Status != f.Status,
			f.DueFrom != nil && it.DueDate.Before(*f.DueFrom),
			f.DueTo != nil && it.DueDate.After(*f.DueTo),
			f.Unpaid && it.Status == StatusPaid,
			f.OverdueAsOf != nil && (it.Status == StatusPaid || !it.DueDate.Before(*f.OverdueAsOf)):
			continue
		}
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m *memRepo) GetInstallment(_ context.Context, id int64) (UserInstallment, error) {
	it, ok := m.items[id]
	if !ok {
		return UserInstallment{}, ErrNotFound
	}
	return it, nil
}

func (m *memRepo) LockInstallment(ctx context.Context, id int64) (UserInstallment, error) {
	return m.GetInstallment(ctx, id)
}

func (m *memRepo) InsertInstallment(_ context.Context, u UserInstallment) (UserInstallment, bool, error) {
	for _, it := range m.items {
		if it.DefinitionID == u.DefinitionID && it.UserID == u.UserID {
			return it, false, nil
		}
	}
	m.nextInst++
	u.ID = m.nextInst
	m.items[u.ID] = u
	return u, true, nil
}

func (m *memRepo) BilledUsers(_ context.Context, definitionID int64) (map[int64]bool, error) {
	out := map[int64]bool{}
	for _, it := range m.items {
		if it.DefinitionID == definitionID {
			out[it.UserID] = true
		}
	}
	return out, nil
}

func (m *memRepo) SetJournalEntry(_ context.Context, id, entryID int64) error {
	it := m.items[id]
	it.JournalEntryID = &entryID
	m.items[id] = it
	return nil
}

func (m *memRepo) UpdatePaid(_ context.Context, id int64, paid float64, status Status, paidAt *time.Time) error {
	it, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	it.PaidAmount, it.Status, it.PaidAt = paid, status, paidAt
	m.items[id] = it
	return nil
}

type stubProjects struct {
	project projects.Project
	members []projects.Member
}

func newStubProjects() *stubProjects {
	return &stubProjects{
		project: projects.Project{ID: 1, Code: "TWR", Name: "Tower A", Status: projects.StatusActive},
		members: []projects.Member{
			{ProjectID: 1, UserID: 2, UserName: "Budi", SharePercent: 33.3333},
			{ProjectID: 1, UserID: 3, UserName: "Citra", SharePercent: 33.3333},
			{ProjectID: 1, UserID: 5, UserName: "Eko", SharePercent: 33.3334},
		},
	}
}

func (s *stubProjects) Get(_ context.Context, id int64) (projects.Project, error) {
	if id != s.project.ID {
		return projects.Project{}, projects.ErrNotFound
	}
	return s.project, nil
}

func (s *stubProjects) ListMembers(_ context.Context, projectID int64) ([]projects.Member, error) {
	if projectID != s.project.ID {
		return nil, nil
	}
	return s.members, nil
}

func (s *stubProjects) List(_ context.Context, _ projects.ListFilter) ([]projects.Project, shared.Pagination, error) {
	return []projects.Project{s.project}, shared.NewPagination(1, shared.DefaultPerPage, 1), nil
}

type recordingPoster struct {
	events []integration.InstallmentGenerated
	err    error
}

func (p *recordingPoster) HandleInstallmentGenerated(_ context.Context, evt integration.InstallmentGenerated) (int64, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.events = append(p.events, evt)
	return int64(100 + len(p.events)), nil
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
