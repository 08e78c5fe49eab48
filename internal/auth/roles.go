// Package auth provides request-scoped actor identity and role policy for
// the requisition and cash-handling endpoints.
package auth

// Role represents a user role.
type Role string

// Role constants.
const (
	RoleRequestor  Role = "requestor"
	RoleApprover   Role = "approver"
	RoleCashier    Role = "cashier"
	RoleAccountant Role = "accountant"
	RoleAdmin      Role = "admin"
)

// Actor is the identity a core operation acts on behalf of. It is passed
// explicitly per invocation, never held in process-wide state.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// NormalizeRole validates and normalizes a role string.
func NormalizeRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleRequestor, RoleApprover, RoleCashier, RoleAccountant, RoleAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

// CanDisburse reports whether the role may prepare and hand out cash.
func CanDisburse(role Role) bool {
	return role == RoleCashier || role == RoleAdmin
}

// CanConfirmChange reports whether the role may independently count and
// confirm returned change.
func CanConfirmChange(role Role) bool {
	return role == RoleCashier || role == RoleAccountant || role == RoleAdmin
}

// CanReject reports whether the role may reject a requisition.
func CanReject(role Role) bool {
	return role == RoleApprover || role == RoleAdmin
}

// CanManageBook reports whether the role may reconcile and close the
// cashbook.
func CanManageBook(role Role) bool {
	return role == RoleCashier || role == RoleAccountant || role == RoleAdmin
}
