package roles

import (
	"context"
	"strconv"

	"github.com/estatebook/estatebook/internal/rbac"
	"github.com/estatebook/estatebook/internal/shared"
)

// RBACPort is the slice of the RBAC service the role screens use.
type RBACPort interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	CreateRole(ctx context.Context, name, description string) (rbac.Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (rbac.Role, error)
	DeleteRole(ctx context.Context, id int64) error
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	RolePermissionIDs(ctx context.Context, roleID int64) ([]int64, error)
	SetRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// AuditPort records role changes.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles role business logic.
type Service struct {
	rbac  RBACPort
	audit AuditPort
}

// NewService builds Service instance.
func NewService(rbac RBACPort, audit AuditPort) *Service {
	return &Service{rbac: rbac, audit: audit}
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	return s.rbac.ListRoles(ctx)
}

// Editor loads the role (zero value for a new one) with permission checkboxes.
func (s *Service) Editor(ctx context.Context, id int64) (RoleEditor, error) {
	var editor RoleEditor
	checked := map[int64]bool{}
	if id > 0 {
		role, err := s.rbac.GetRole(ctx, id)
		if err != nil {
			return editor, err
		}
		editor.Role = role
		ids, err := s.rbac.RolePermissionIDs(ctx, id)
		if err != nil {
			return editor, err
		}
		for _, pid := range ids {
			checked[pid] = true
		}
	}
	perms, err := s.rbac.ListPermissions(ctx)
	if err != nil {
		return editor, err
	}
	editor.Groups = groupPermissions(perms, checked)
	return editor, nil
}

// Save creates (id == 0) or updates a role and replaces its permissions.
func (s *Service) Save(ctx context.Context, actorID, id int64, form RoleForm) (rbac.Role, error) {
	var (
		role rbac.Role
		err  error
	)
	action := "role.update"
	if id == 0 {
		action = "role.create"
		role, err = s.rbac.CreateRole(ctx, form.Name, form.Description)
	} else {
		role, err = s.rbac.UpdateRole(ctx, id, form.Name, form.Description)
	}
	if err != nil {
		return rbac.Role{}, err
	}
	if err := s.rbac.SetRolePermissions(ctx, role.ID, form.PermissionIDs); err != nil {
		return rbac.Role{}, err
	}
	s.record(ctx, actorID, action, role.ID, map[string]any{"name": role.Name, "permissions": form.PermissionIDs})
	return role, nil
}

// Delete removes a role.
func (s *Service) Delete(ctx context.Context, actorID, id int64) error {
	if err := s.rbac.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.record(ctx, actorID, "role.delete", id, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, roleID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "role",
		EntityID: strconv.FormatInt(roleID, 10),
		Meta:     meta,
	})
}
