// Package access layers the role-based row-visibility policy on top of the
// query predicates. It decides which stored rows a caller may see; it never
// grants writes.
package access

import (
	"teamassist/internal/models"
	"teamassist/internal/query"
)

// Table names the policy is keyed on.
const (
	TableProjects = "projects"
	TableIdentity = "user_perms"
)

// Apply narrows a query predicate with role and identity restrictions:
//
//   - admin, hr: unrestricted on every table
//   - manager: unrestricted on projects (the legacy restrict-to-led-projects
//     rule is disabled, see Restricted below), own row on the identity table
//   - employee, project_manager, anything else: projects restricted to rows
//     whose assignee array contains the caller's email, own row on the
//     identity table
//
// Tables not named above carry no additional restriction for any role.
func Apply(table string, pred query.Predicate, role models.Role, email string) query.Predicate {
	switch role {
	case models.RoleAdmin, models.RoleHR:
		return pred
	case models.RoleManager:
		switch table {
		case TableProjects:
			// Managers keep full project visibility. The original
			// product rule restricted managers to projects they
			// lead; that rule is intentionally disabled pending
			// product sign-off.
			return pred
		case TableIdentity:
			return query.And(pred, query.Eq("email", email))
		}
		return pred
	default:
		switch table {
		case TableProjects:
			return query.And(pred, query.Contains("assigned_to_emails", email))
		case TableIdentity:
			return query.And(pred, query.Eq("email", email))
		}
		return pred
	}
}

// Restricted reports whether the policy adds clauses for this table at all.
func Restricted(table string) bool {
	return table == TableProjects || table == TableIdentity
}
