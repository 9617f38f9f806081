// Copyright (c) 2026 Tankobon. All rights reserved.
// Author: dev@tankobon.app

package sec

// # User Roles

// UserRole represents the authorization level granted to an account.
type UserRole string

const (
	// Unrestricted system access
	RoleAdmin UserRole = "admin"

	// Can ingest chapters and manage the catalog
	RoleStaff UserRole = "staff"

	// Default role for standard registered users
	RoleMember UserRole = "member"

	// Anonymous accounts created for bookmark persistence
	RoleGuest UserRole = "guest"
)

// # Role Hierarchy

// AtLeast checks if the current role meets or exceeds the required target role.
func (r UserRole) AtLeast(target UserRole) bool {
	return r.level() >= target.level()
}

// level maps a role to a numeric hierarchy level for comparison logic.
func (r UserRole) level() int {

	// Linear scale (10-40) allows for future intermediate roles
	switch r {
	case RoleAdmin:
		return 40
	case RoleStaff:
		return 30
	case RoleMember:
		return 20
	case RoleGuest:
		return 10
	default:
		return 0
	}
}
