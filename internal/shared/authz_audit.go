package shared

// PermAuditView grants read access to the audit trail and its CSV export.
const PermAuditView = "audit.view"

// AuditScopes lists permissions used by the audit trail.
func AuditScopes() []string {
	return []string{PermAuditView}
}
