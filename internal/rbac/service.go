package rbac

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/estatebook/estatebook/internal/shared"
)

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicateRole is returned when a role name is already taken.
	ErrDuplicateRole = shared.NewUserError("A role with this name already exists.")
	// ErrRoleNameRequired is returned for blank role names.
	ErrRoleNameRequired = shared.NewUserError("Role name is required.")
	// ErrBuiltinRole protects the seeded admin role from removal.
	ErrBuiltinRole = shared.NewUserError("The admin role cannot be deleted.")
)

// Service orchestrates RBAC operations.
type Service struct {
	repo Repository
}

// NewService constructs a Service backed by the provided repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrRoleNameRequired
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description))
}

// UpdateRole updates an existing role.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, ErrRoleNameRequired
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a role by ID. Returns ErrNotFound if nothing was deleted.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if strings.EqualFold(role.Name, shared.RoleAdmin) {
		return ErrBuiltinRole
	}
	rows, err := s.repo.DeleteRole(ctx, id)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPermissions returns all permissions ordered by name.
func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	return s.repo.ListPermissions(ctx)
}

// RolePermissionIDs lists the permission ids attached to a role.
func (s *Service) RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error) {
	return s.repo.RolePermissionIDs(ctx, roleID)
}

// SetRolePermissions replaces permissions for a role.
func (s *Service) SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	current, err := s.repo.RolePermissionIDs(ctx, roleID)
	if err != nil {
		return err
	}
	add, remove := diffIDs(current, permissionIDs)
	for _, id := range add {
		if err := s.repo.AttachPermission(ctx, roleID, id); err != nil {
			return err
		}
	}
	for _, id := range remove {
		if err := s.repo.DetachPermission(ctx, roleID, id); err != nil {
			return err
		}
	}
	return nil
}

// UserRoleIDs lists the roles assigned to a user.
func (s *Service) UserRoleIDs(ctx context.Context, userID int64) ([]int64, error) {
	return s.repo.UserRoleIDs(ctx, userID)
}

// SetUserRoles replaces the role assignments of a user.
func (s *Service) SetUserRoles(ctx context.Context, userID int64, roleIDs []int64) error {
	current, err := s.repo.UserRoleIDs(ctx, userID)
	if err != nil {
		return err
	}
	add, remove := diffIDs(current, roleIDs)
	for _, id := range add {
		if err := s.repo.AssignRole(ctx, userID, id); err != nil {
			return err
		}
	}
	for _, id := range remove {
		if err := s.repo.RemoveRole(ctx, userID, id); err != nil {
			return err
		}
	}
	return nil
}

// AssignRoleByName attaches a role looked up by name.
func (s *Service) AssignRoleByName(ctx context.Context, userID int64, roleName string) error {
	role, err := s.repo.FindRoleByName(ctx, roleName)
	if err != nil {
		return fmt.Errorf("rbac: role %q: %w", roleName, err)
	}
	return s.repo.AssignRole(ctx, userID, role.ID)
}

// EffectivePermissions returns deduplicated permission names for a user.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return s.repo.EffectivePermissions(ctx, userID)
}

// Principal loads the identity and permission set for an active user.
func (s *Service) Principal(ctx context.Context, userID int64) (*shared.Principal, error) {
	identity, err := s.repo.Identity(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !identity.IsActive {
		return nil, ErrNotFound
	}
	perms, err := s.repo.EffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(perms))
	for _, p := range perms {
		set[strings.ToLower(p)] = true
	}
	return &shared.Principal{ID: identity.ID, Name: identity.Name, Email: identity.Email, Permissions: set}, nil
}

// SeedResult summarises a SeedDefaults run.
type SeedResult struct {
	Permissions int
	Roles       int
}

// SeedDefaults upserts the permission catalogue and the built-in roles.
// Existing role grants are extended, never reduced.
func (s *Service) SeedDefaults(ctx context.Context) (SeedResult, error) {
	var result SeedResult
	ids := make(map[string]int64)
	for _, name := range shared.AllScopes() {
		perm, err := s.repo.UpsertPermission(ctx, name, permissionDescriptions[name])
		if err != nil {
			return result, fmt.Errorf("rbac: seed permission %s: %w", name, err)
		}
		ids[name] = perm.ID
		result.Permissions++
	}

	roleNames := make([]string, 0)
	defaults := shared.DefaultRoleScopes()
	for name := range defaults {
		roleNames = append(roleNames, name)
	}
	sort.Strings(roleNames)

	for _, name := range roleNames {
		role, err := s.repo.FindRoleByName(ctx, name)
		if errors.Is(err, ErrNotFound) {
			role, err = s.repo.CreateRole(ctx, name, "Built-in "+name+" role")
			result.Roles++
		}
		if err != nil {
			return result, fmt.Errorf("rbac: seed role %s: %w", name, err)
		}
		for _, perm := range defaults[name] {
			if err := s.repo.AttachPermission(ctx, role.ID, ids[perm]); err != nil {
				return result, err
			}
		}
	}
	return result, nil
}

func diffIDs(current, desired []int64) (add, remove []int64) {
	have := make(map[int64]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
	}
	want := make(map[int64]struct{}, len(desired))
	for _, id := range desired {
		if _, dup := want[id]; dup {
			continue
		}
		want[id] = struct{}{}
		if _, ok := have[id]; !ok {
			add = append(add, id)
		}
	}
	for _, id := range current {
		if _, ok := want[id]; !ok {
			remove = append(remove, id)
		}
	}
	return add, remove
}
