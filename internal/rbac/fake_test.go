package rbac

import (
	"context"
	"sort"
	"strings"
	"time"
)

type fakeRepo struct {
	roles      map[int64]Role
	perms      map[int64]Permission
	rolePerms  map[int64]map[int64]bool
	userRoles  map[int64]map[int64]bool
	identities map[int64]Identity
	nextID     int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		roles:      map[int64]Role{},
		perms:      map[int64]Permission{},
		rolePerms:  map[int64]map[int64]bool{},
		userRoles:  map[int64]map[int64]bool{},
		identities: map[int64]Identity{},
	}
}

func (f *fakeRepo) id() int64 {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) ListRoles(ctx context.Context) ([]Role, error) {
	var out []Role
	for _, r := range f.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (f *fakeRepo) FindRoleByName(ctx context.Context, name string) (Role, error) {
	for _, r := range f.roles {
		if strings.EqualFold(r.Name, name) {
			return r, nil
		}
	}
	return Role{}, ErrNotFound
}

func (f *fakeRepo) CreateRole(ctx context.Context, name, description string) (Role, error) {
	if _, err := f.FindRoleByName(ctx, name); err == nil {
		return Role{}, ErrDuplicateRole
	}
	r := Role{ID: f.id(), Name: name, Description: description, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	f.roles[r.ID] = r
	return r, nil
}

func (f *fakeRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	r, ok := f.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	r.Name, r.Description = name, description
	f.roles[id] = r
	return r, nil
}

func (f *fakeRepo) DeleteRole(ctx context.Context, id int64) (int64, error) {
	if _, ok := f.roles[id]; !ok {
		return 0, nil
	}
	delete(f.roles, id)
	return 1, nil
}

func (f *fakeRepo) ListPermissions(ctx context.Context) ([]Permission, error) {
	var out []Permission
	for _, p := range f.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) UpsertPermission(ctx context.Context, name, description string) (Permission, error) {
	for id, p := range f.perms {
		if p.Name == name {
			p.Description = description
			f.perms[id] = p
			return p, nil
		}
	}
	p := Permission{ID: f.id(), Name: name, Description: description}
	f.perms[p.ID] = p
	return p, nil
}

func (f *fakeRepo) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return sortedKeys(f.rolePerms[roleID]), nil
}

func (f *fakeRepo) AttachPermission(ctx context.Context, roleID, permissionID int64) error {
	if f.rolePerms[roleID] == nil {
		f.rolePerms[roleID] = map[int64]bool{}
	}
	f.rolePerms[roleID][permissionID] = true
	return nil
}

func (f *fakeRepo) DetachPermission(ctx context.Context, roleID, permissionID int64) error {
	delete(f.rolePerms[roleID], permissionID)
	return nil
}

func (f *fakeRepo) UserRoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	return sortedKeys(f.userRoles[userID]), nil
}

func (f *fakeRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	if f.userRoles[userID] == nil {
		f.userRoles[userID] = map[int64]bool{}
	}
	f.userRoles[userID][roleID] = true
	return nil
}

func (f *fakeRepo) RemoveRole(ctx context.Context, userID, roleID int64) error {
	delete(f.userRoles[userID], roleID)
	return nil
}

func (f *fakeRepo) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	seen := map[string]bool{}
	for roleID := range f.userRoles[userID] {
		for permID := range f.rolePerms[roleID] {
			seen[f.perms[permID].Name] = true
		}
	}
	var out []string
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeRepo) Identity(ctx context.Context, userID int64) (Identity, error) {
	id, ok := f.identities[userID]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return id, nil
}

func sortedKeys(m map[int64]bool) []int64 {
	var out []int64
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
