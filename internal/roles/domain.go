package roles

import (
	"sort"
	"strings"

	"github.com/estatebook/estatebook/internal/rbac"
)

// RoleForm carries the role editor submission.
type RoleForm struct {
	Name          string
	Description   string
	PermissionIDs []int64
}

// PermissionOption is a checkbox on the role editor.
type PermissionOption struct {
	rbac.Permission
	Checked bool
}

// PermissionGroup clusters permissions by their module prefix.
type PermissionGroup struct {
	Module  string
	Options []PermissionOption
}

// RoleEditor is the view model of the role form.
type RoleEditor struct {
	Role   rbac.Role
	Groups []PermissionGroup
}

func groupPermissions(perms []rbac.Permission, checked map[int64]bool) []PermissionGroup {
	byModule := map[string][]PermissionOption{}
	for _, p := range perms {
		module := p.Name
		if idx := strings.IndexByte(p.Name, '.'); idx > 0 {
			module = p.Name[:idx]
		}
		byModule[module] = append(byModule[module], PermissionOption{Permission: p, Checked: checked[p.ID]})
	}
	groups := make([]PermissionGroup, 0, len(byModule))
	for module, opts := range byModule {
		sort.Slice(opts, func(i, j int) bool { return opts[i].Name < opts[j].Name })
		groups = append(groups, PermissionGroup{Module: module, Options: opts})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Module < groups[j].Module })
	return groups
}
