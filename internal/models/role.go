package models

import "strings"

// Role names a caller's access level. It is resolved once per request and
// never changes for the lifetime of that request.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleHR             Role = "hr"
	RoleManager        Role = "manager"
	RoleEmployee       Role = "employee"
	RoleProjectManager Role = "project_manager"
)

// ParseRole normalizes a stored role string. Matching is case-insensitive and
// tolerant of spacing; anything unrecognized falls back to employee.
func ParseRole(raw string) Role {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")
	switch s {
	case "admin":
		return RoleAdmin
	case "hr":
		return RoleHR
	case "manager":
		return RoleManager
	case "project_manager", "projectmanager", "pm":
		return RoleProjectManager
	default:
		return RoleEmployee
	}
}

// RiskRole collapses aliased roles before risk evaluation: a project manager
// is treated exactly like an employee there.
func (r Role) RiskRole() Role {
	if r == RoleProjectManager {
		return RoleEmployee
	}
	return r
}

// Privileged reports whether the role clears the admin/manager/hr bar used by
// the risk precedence rules.
func (r Role) Privileged() bool {
	switch r.RiskRole() {
	case RoleAdmin, RoleManager, RoleHR:
		return true
	}
	return false
}

// UserIdentity is the resolved caller: the auth collaborator supplies email
// and role, the identity table supplies the numeric id.
type UserIdentity struct {
	Email     string `json:"email"`
	NumericID int64  `json:"numeric_id"`
	Role      Role   `json:"role"`
}
