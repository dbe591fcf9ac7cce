// Package permission implements the fixed role-to-action authorization table.
// Evaluation is a pure lookup with no storage access; callers resolve the
// actor's role and, for the project-scoped role, whether a project assignment
// exists.
package permission

import "sort"

// Role is the closed set of actor roles.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleCoordinator    Role = "coordinator"
	RoleSiteTechnician Role = "site_technician"
	RoleCountryManager Role = "country_manager"
	RoleCounterpart    Role = "counterpart"
)

// Roles lists the roles assignable to internal users, in privilege order.
// RoleCounterpart is excluded: counterpart access never ties to a user record.
var Roles = []Role{RoleAdmin, RoleCoordinator, RoleSiteTechnician, RoleCountryManager}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoordinator, RoleSiteTechnician, RoleCountryManager, RoleCounterpart:
		return true
	}
	return false
}

// Assignable reports whether the role may be granted to an internal user.
func (r Role) Assignable() bool {
	return r.Valid() && r != RoleCounterpart
}

// Action is the closed set of permission-gated operations.
type Action string

const (
	ProjectView   Action = "project_view"
	ProjectCreate Action = "project_create"
	ProjectEdit   Action = "project_edit"
	ProjectDelete Action = "project_delete"

	BudgetView Action = "budget_view"
	BudgetEdit Action = "budget_edit"

	ExpenseView     Action = "expense_view"
	ExpenseCreate   Action = "expense_create"
	ExpenseEdit     Action = "expense_edit"
	ExpenseValidate Action = "expense_validate"
	ExpenseJustify  Action = "expense_justify"

	TransferView   Action = "transfer_view"
	TransferManage Action = "transfer_manage"

	FrameworkView Action = "framework_view"
	FrameworkEdit Action = "framework_edit"

	DocumentView   Action = "document_view"
	DocumentUpload Action = "document_upload"
	DocumentSeal   Action = "document_seal"

	ReportGenerate Action = "report_generate"
	ReportDownload Action = "report_download"

	UsersManage Action = "users_manage"
	AuditView   Action = "audit_view"

	PostponementRequest Action = "postponement_request"
	PostponementApprove Action = "postponement_approve"
)

type actionSet map[Action]struct{}

func set(actions ...Action) actionSet {
	s := make(actionSet, len(actions))
	for _, a := range actions {
		s[a] = struct{}{}
	}
	return s
}

var allActions = set(
	ProjectView, ProjectCreate, ProjectEdit, ProjectDelete,
	BudgetView, BudgetEdit,
	ExpenseView, ExpenseCreate, ExpenseEdit, ExpenseValidate, ExpenseJustify,
	TransferView, TransferManage,
	FrameworkView, FrameworkEdit,
	DocumentView, DocumentUpload, DocumentSeal,
	ReportGenerate, ReportDownload,
	UsersManage, AuditView,
	PostponementRequest, PostponementApprove,
)

// permissionsByRole is the authorization table. Project deletion, user
// administration and the audit view belong to admin alone; project creation
// to admin and coordinator alone.
var permissionsByRole = map[Role]actionSet{
	RoleAdmin: allActions,
	RoleCoordinator: set(
		ProjectView, ProjectCreate, ProjectEdit,
		BudgetView, BudgetEdit,
		ExpenseView, ExpenseCreate, ExpenseEdit, ExpenseValidate, ExpenseJustify,
		TransferView, TransferManage,
		FrameworkView, FrameworkEdit,
		DocumentView, DocumentUpload, DocumentSeal,
		ReportGenerate, ReportDownload,
		PostponementRequest, PostponementApprove,
	),
	RoleSiteTechnician: set(
		ProjectView, ProjectEdit,
		BudgetView, BudgetEdit,
		ExpenseView, ExpenseCreate, ExpenseEdit, ExpenseValidate, ExpenseJustify,
		TransferView, TransferManage,
		FrameworkView, FrameworkEdit,
		DocumentView, DocumentUpload, DocumentSeal,
		ReportGenerate, ReportDownload,
		PostponementRequest,
	),
	RoleCountryManager: set(
		ProjectView,
		BudgetView,
		ExpenseView, ExpenseCreate, ExpenseEdit,
		TransferView,
		FrameworkView, FrameworkEdit,
		DocumentView, DocumentUpload,
		ReportDownload,
	),
	RoleCounterpart: set(
		ProjectView,
		FrameworkView,
		DocumentView, DocumentUpload,
	),
}

// IsAllowed reports whether the role may perform the action. A nil role
// (pending activation) and an unknown action both fail closed.
func IsAllowed(role *Role, action Action) bool {
	if role == nil {
		return false
	}
	actions, ok := permissionsByRole[*role]
	if !ok {
		return false
	}
	_, ok = actions[action]
	return ok
}

// InProjectScope reports whether the role reaches the given project.
// Every role sees every project except country_manager, which is limited to
// its explicit assignments.
func InProjectScope(role *Role, hasAssignment bool) bool {
	if role == nil {
		return false
	}
	if *role == RoleCountryManager {
		return hasAssignment
	}
	return true
}

// Actions returns the role's allowed actions in stable order, for
// display surfaces.
func Actions(role Role) []Action {
	actions := permissionsByRole[role]
	out := make([]Action, 0, len(actions))
	for a := range actions {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
