package rbac

import "time"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability.
type Permission struct {
	ID          int64
	Name        string
	Description string
}

// Identity is the subset of a user row needed to build a principal.
type Identity struct {
	ID       int64
	Name     string
	Email    string
	IsActive bool
}

// permissionDescriptions documents every catalogued permission.
var permissionDescriptions = map[string]string{
	"users.view":        "View user accounts",
	"users.edit":        "Create and edit user accounts",
	"roles.view":        "View roles",
	"roles.edit":        "Create and edit roles",
	"permissions.view":  "View the permission catalogue",
	"self.view":         "View own dashboard, installments and documents",
	"projects.view":     "View projects, units and members",
	"projects.edit":     "Create and edit projects, units and members",
	"installments.view": "View installment schedules",
	"installments.edit": "Define and generate installments",
	"payments.record":   "Record installment payments",
	"penalties.manage":  "Accrue and waive late payment penalties",
	"documents.view":    "View and download documents",
	"documents.edit":    "Upload and delete documents",
	"archive.manage":    "Archive and restore projects and users",
	"accounting.view":   "View the chart of accounts, journal and ledgers",
	"accounting.edit":   "Post manual journal entries and seed the chart",
	"reports.export":    "Export ledgers and statements as CSV or PDF",
	"audit.view":        "View and export the audit trail",
}
