package projects

import (
	"context"
	"sort"
	"time"

	"github.com/estatebook/estatebook/internal/shared"
	"github.com/estatebook/estatebook/internal/users"
)

type memRepo struct {
	nextProject int64
	nextUnit    int64
	projects    map[int64]Project
	units       map[int64]Unit
	members     map[int64]map[int64]Member
	outstanding map[[2]int64]float64
	directory   *stubDirectory
}

func newMemRepo(directory *stubDirectory) *memRepo {
	return &memRepo{
		projects:    map[int64]Project{},
		units:       map[int64]Unit{},
		members:     map[int64]map[int64]Member{},
		outstanding: map[[2]int64]float64{},
		directory:   directory,
	}
}

func (m *memRepo) List(_ context.Context, filter ListFilter) ([]Project, int, error) {
	var out []Project
	for id := int64(1); id <= m.nextProject; id++ {
		p, ok := m.projects[id]
		if !ok || (filter.Status != "" && p.Status != filter.Status) {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (m *memRepo) Get(_ context.Context, id int64) (Project, error) {
	p, ok := m.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (m *memRepo) Lock(ctx context.Context, id int64) (Project, error) {
	return m.Get(ctx, id)
}

func (m *memRepo) Create(_ context.Context, p Project) (Project, error) {
	for _, existing := range m.projects {
		if existing.Code == p.Code {
			return Project{}, ErrDuplicateCode
		}
	}
	m.nextProject++
	p.ID = m.nextProject
	p.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.projects[p.ID] = p
	return p, nil
}

func (m *memRepo) Update(_ context.Context, p Project) (Project, error) {
	if _, ok := m.projects[p.ID]; !ok {
		return Project{}, ErrNotFound
	}
	for _, existing := range m.projects {
		if existing.Code == p.Code && existing.ID != p.ID {
			return Project{}, ErrDuplicateCode
		}
	}
	m.projects[p.ID] = p
	return p, nil
}

func (m *memRepo) ownerOf(unitID int64) (int64, string) {
	for _, byUser := range m.members {
		for _, mem := range byUser {
			if mem.UnitID != nil && *mem.UnitID == unitID {
				return mem.UserID, mem.UserName
			}
		}
	}
	return 0, ""
}

func (m *memRepo) ListUnits(_ context.Context, projectID int64) ([]Unit, error) {
	var out []Unit
	for id := int64(1); id <= m.nextUnit; id++ {
		u, ok := m.units[id]
		if !ok || u.ProjectID != projectID {
			continue
		}
		u.OwnerID, u.OwnerName = m.ownerOf(u.ID)
		out = append(out, u)
	}
	return out, nil
}

func (m *memRepo) GetUnit(_ context.Context, id int64) (Unit, error) {
	u, ok := m.units[id]
	if !ok {
		return Unit{}, ErrNotFound
	}
	u.OwnerID, u.OwnerName = m.ownerOf(id)
	return u, nil
}

func (m *memRepo) CreateUnit(_ context.Context, u Unit) (Unit, error) {
	for _, existing := range m.units {
		if existing.ProjectID == u.ProjectID && existing.Number == u.Number {
			return Unit{}, ErrDuplicateUnit
		}
	}
	m.nextUnit++
	u.ID = m.nextUnit
	m.units[u.ID] = u
	return u, nil
}

func (m *memRepo) ListMembers(_ context.Context, projectID int64) ([]Member, error) {
	var out []Member
	for _, mem := range m.members[projectID] {
		if mem.UnitID != nil {
			mem.UnitNumber = m.units[*mem.UnitID].Number
		}
		out = append(out, mem)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *memRepo) UpsertMember(_ context.Context, mem Member) error {
	if m.members[mem.ProjectID] == nil {
		m.members[mem.ProjectID] = map[int64]Member{}
	}
	if u, ok := m.directory.users[mem.UserID]; ok {
		mem.UserName = u.Name
		mem.UserEmail = u.Email
	}
	m.members[mem.ProjectID][mem.UserID] = mem
	return nil
}

func (m *memRepo) DeleteMember(_ context.Context, projectID, userID int64) error {
	if _, ok := m.members[projectID][userID]; !ok {
		return ErrNotFound
	}
	delete(m.members[projectID], userID)
	return nil
}

func (m *memRepo) Outstanding(_ context.Context, projectID, userID int64) (float64, error) {
	return m.outstanding[[2]int64{projectID, userID}], nil
}

func (m *memRepo) Memberships(_ context.Context, userID int64) ([]Membership, error) {
	var out []Membership
	for projectID, byUser := range m.members {
		if mem, ok := byUser[userID]; ok {
			out = append(out, Membership{Project: m.projects[projectID], SharePercent: mem.SharePercent, UnitNumber: m.units[derefID(mem.UnitID)].Number})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Project.ID < out[j].Project.ID })
	return out, nil
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}

type stubDirectory struct {
	users map[int64]users.User
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{users: map[int64]users.User{
		1: {ID: 1, Name: "Admin", Email: "admin@example.com", IsActive: true},
		2: {ID: 2, Name: "Budi", Email: "budi@example.com", IsActive: true},
		3: {ID: 3, Name: "Citra", Email: "citra@example.com", IsActive: true},
		4: {ID: 4, Name: "Dewi", Email: "dewi@example.com", IsActive: false},
	}}
}

func (s *stubDirectory) Get(_ context.Context, id int64) (users.User, error) {
	u, ok := s.users[id]
	if !ok {
		return users.User{}, users.ErrNotFound
	}
	return u, nil
}

func (s *stubDirectory) List(_ context.Context, filter users.ListFilter) ([]users.User, shared.Pagination, error) {
	var out []users.User
	for id := int64(1); id <= int64(len(s.users)); id++ {
		u, ok := s.users[id]
		if !ok || (filter.Active != nil && u.IsActive != *filter.Active) {
			continue
		}
		out = append(out, u)
	}
	return out, shared.NewPagination(1, shared.DefaultPerPage, len(out)), nil
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
