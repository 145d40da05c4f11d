package loans

import "loan-triage/internal/models"

// Authorization predicates for every state-changing operation, consumed
// uniformly by the loans and arbitration services so the role rules live in
// exactly one place.

// CanClaim reports whether the role may self-assign applications.
func CanClaim(role models.Role) bool {
	return role == models.RoleOfficer
}

// CanAssign reports whether the role may directly assign an application,
// bypassing branch matching.
func CanAssign(role models.Role) bool {
	return role == models.RoleManager || role == models.RoleAdmin
}

// CanReassign reports whether the role may change branch and/or assignee of
// an application.
func CanReassign(role models.Role) bool {
	return role == models.RoleAdmin
}

// CanClose reports whether the actor may close the given application.
// Admins and managers always may; an officer only when currently assigned.
// manager_viewer is read-only everywhere.
func CanClose(actor Actor, loan *models.LoanApplication) bool {
	switch actor.Role {
	case models.RoleAdmin, models.RoleManager:
		return true
	case models.RoleOfficer:
		return loan.AssignedToID != nil && *loan.AssignedToID == actor.ID
	}
	return false
}

// CanArbitrate reports whether the role may approve or reject assignment
// requests.
func CanArbitrate(role models.Role) bool {
	return role == models.RoleManager || role == models.RoleAdmin
}
