package shared

// Project lifecycle permissions.
const (
	PermProjectsView     = "projects.view"
	PermProjectsEdit     = "projects.edit"
	PermInstallmentsView = "installments.view"
	PermInstallmentsEdit = "installments.edit"
	PermPaymentsRecord   = "payments.record"
	PermPenaltiesManage  = "penalties.manage"
	PermDocumentsView    = "documents.view"
	PermDocumentsEdit    = "documents.edit"
	PermArchiveManage    = "archive.manage"
)

// ProjectScopes returns the permissions guarding project, installment and payment screens.
func ProjectScopes() []string {
	return []string{
		PermProjectsView,
		PermProjectsEdit,
		PermInstallmentsView,
		PermInstallmentsEdit,
		PermPaymentsRecord,
		PermPenaltiesManage,
		PermDocumentsView,
		PermDocumentsEdit,
		PermArchiveManage,
	}
}
