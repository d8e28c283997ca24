package users

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
	_ "github.com/estatebook/estatebook/testing"
)

type memRepo struct {
	nextID    int64
	users     map[int64]User
	passwords map[int64]string
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[int64]User{}, passwords: map[int64]string{}}
}

func (m *memRepo) List(_ context.Context, filter ListFilter) ([]User, int, error) {
	var out []User
	for id := int64(1); id <= m.nextID; id++ {
		if u, ok := m.users[id]; ok {
			if filter.Active != nil && u.IsActive != *filter.Active {
				continue
			}
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

func (m *memRepo) Get(_ context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memRepo) Create(_ context.Context, u User, hash string) (User, error) {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return User{}, ErrDuplicateEmail
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = u
	m.passwords[u.ID] = hash
	return u, nil
}

func (m *memRepo) Update(_ context.Context, u User) (User, error) {
	cur, ok := m.users[u.ID]
	if !ok {
		return User{}, ErrNotFound
	}
	u.IsActive = cur.IsActive
	m.users[u.ID] = u
	return u, nil
}

func (m *memRepo) SetPassword(_ context.Context, id int64, hash string) error {
	m.passwords[id] = hash
	return nil
}

func (m *memRepo) SetActive(_ context.Context, id int64, active bool) error {
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	m.users[id] = u
	return nil
}

type stubRoles struct {
	assigned map[int64][]int64
}

func (s *stubRoles) ListRoles(context.Context) ([]rbac.Role, error) {
	return []rbac.Role{{ID: 1, Name: "admin"}, {ID: 2, Name: "member"}}, nil
}

func (s *stubRoles) UserRoleIDs(_ context.Context, userID int64) ([]int64, error) {
	return s.assigned[userID], nil
}

func (s *stubRoles) SetUserRoles(_ context.Context, userID int64, ids []int64) error {
	s.assigned[userID] = ids
	return nil
}

type stubAccounts struct {
	opened map[int64]string
	err    error
}

func (s *stubAccounts) EnsureMemberAccount(_ context.Context, userID int64, name string) error {
	if s.err != nil {
		return s.err
	}
	s.opened[userID] = name
	return nil
}

type stubAudit struct {
	actions []string
}

func (s *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	s.actions = append(s.actions, log.Action)
	return nil
}

type fixture struct {
	svc      *Service
	repo     *memRepo
	roles    *stubRoles
	accounts *stubAccounts
	audit    *stubAudit
}

func newFixture() fixture {
	f := fixture{
		repo:     newMemRepo(),
		roles:    &stubRoles{assigned: map[int64][]int64{}},
		accounts: &stubAccounts{opened: map[int64]string{}},
		audit:    &stubAudit{},
	}
	f.svc = NewService(f.repo, f.roles, f.accounts, f.audit, nil).WithHashCost(bcrypt.MinCost)
	return f
}

func validInput() UserInput {
	return UserInput{
		Email:    " Ana@Example.com ",
		Name:     "Ana Putri",
		Phone:    "0812",
		Password: "correct-horse",
		RoleIDs:  []int64{2},
	}
}

func TestCreateUserOpensMemberAccount(t *testing.T) {
	f := newFixture()

	u, err := f.svc.Create(context.Background(), 9, validInput())
	require.NoError(t, err)

	assert.Equal(t, "ana@example.com", u.Email)
	assert.True(t, u.IsActive)
	assert.Equal(t, "Ana Putri", f.accounts.opened[u.ID])
	assert.Equal(t, []int64{2}, f.roles.assigned[u.ID])
	assert.Equal(t, []string{"user.create"}, f.audit.actions)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.repo.passwords[u.ID]), []byte("correct-horse")))
}

func TestCreateUserValidation(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.Email = "not-an-email"
	in.Password = ""

	_, err := f.svc.Create(context.Background(), 9, in)
	errs, ok := AsFieldErrors(err)
	require.True(t, ok)
	assert.Contains(t, errs, "Email")
	assert.Contains(t, errs, "Password")
	assert.Empty(t, f.repo.users)
}

func TestCreateUserShortPassword(t *testing.T) {
	f := newFixture()
	in := validInput()
	in.Password = "short"

	_, err := f.svc.Create(context.Background(), 9, in)
	errs, ok := AsFieldErrors(err)
	require.True(t, ok)
	assert.Equal(t, "Must be at least 8.", errs["Password"])
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(context.Background(), 9, validInput())
	require.NoError(t, err)

	_, err = f.svc.Create(context.Background(), 9, validInput())
	require.ErrorIs(t, err, ErrDuplicateEmail)
	assert.Equal(t, "Another account already uses this email address.", shared.UserSafeMessage(err))
}

func TestCreateUserFailsWhenAccountCannotOpen(t *testing.T) {
	f := newFixture()
	f.accounts.err = errors.New("boom")

	_, err := f.svc.Create(context.Background(), 9, validInput())
	require.Error(t, err)
	assert.Empty(t, f.audit.actions)
}

func TestUpdateKeepsPasswordWhenBlank(t *testing.T) {
	f := newFixture()
	u, err := f.svc.Create(context.Background(), 9, validInput())
	require.NoError(t, err)
	before := f.repo.passwords[u.ID]

	in := validInput()
	in.Name = "Ana P."
	in.Password = ""
	in.RoleIDs = nil
	updated, err := f.svc.Update(context.Background(), 9, u.ID, in)
	require.NoError(t, err)

	assert.Equal(t, "Ana P.", updated.Name)
	assert.Equal(t, before, f.repo.passwords[u.ID])
	assert.Equal(t, []int64{2}, f.roles.assigned[u.ID])
	assert.Equal(t, "Ana P.", f.accounts.opened[u.ID])
}

func TestUpdateChangesPassword(t *testing.T) {
	f := newFixture()
	u, err := f.svc.Create(context.Background(), 9, validInput())
	require.NoError(t, err)

	in := validInput()
	in.Password = "another-secret"
	_, err = f.svc.Update(context.Background(), 9, u.ID, in)
	require.NoError(t, err)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(f.repo.passwords[u.ID]), []byte("another-secret")))
}

func TestSetActiveRefusesSelf(t *testing.T) {
	f := newFixture()
	u, err := f.svc.Create(context.Background(), 9, validInput())
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.SetActive(context.Background(), u.ID, u.ID, false), ErrSelfDeactivate)
	require.NoError(t, f.svc.SetActive(context.Background(), 9, u.ID, false))

	active := false
	items, page, err := f.svc.List(context.Background(), ListFilter{Active: &active})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, page.Total)
}
