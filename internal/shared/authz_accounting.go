package shared

// Accounting permissions.
const (
	PermAccountingView = "accounting.view"
	PermAccountingEdit = "accounting.edit"
	PermReportsExport  = "reports.export"
)

// AccountingScopes lists permissions for the chart of accounts, books and statements.
func AccountingScopes() []string {
	return []string{PermAccountingView, PermAccountingEdit, PermReportsExport}
}

// AllScopes is the full permission catalogue seeded into the permissions table.
func AllScopes() []string {
	out := CoreScopes()
	out = append(out, ProjectScopes()...)
	out = append(out, AccountingScopes()...)
	out = append(out, AuditScopes()...)
	return out
}

// Built-in role names.
const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleMember     = "member"
)

// DefaultRoleScopes maps the built-in roles to their permissions.
func DefaultRoleScopes() map[string][]string {
	return map[string][]string{
		RoleAdmin: AllScopes(),
		RoleAccountant: {
			PermProjectsView,
			PermInstallmentsView,
			PermPaymentsRecord,
			PermPenaltiesManage,
			PermDocumentsView,
			PermAccountingView,
			PermAccountingEdit,
			PermReportsExport,
			PermAuditView,
			PermSelfView,
		},
		RoleMember: {PermSelfView},
	}
}
