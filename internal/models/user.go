package models

import (
	"strings"
	"time"
)

// Role is a staff permission level.
type Role string

const (
	RoleOfficer       Role = "officer"
	RoleManager       Role = "manager"
	RoleManagerViewer Role = "manager_viewer"
	RoleAdmin         Role = "admin"
	RoleAdminEditor   Role = "admin_editor"
)

// ValidRole reports whether r names a known role.
func ValidRole(r Role) bool {
	switch r {
	case RoleOfficer, RoleManager, RoleManagerViewer, RoleAdmin, RoleAdminEditor:
		return true
	}
	return false
}

// User is a staff member. Users are created lazily on first successful
// directory authentication with role officer and no branches.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Role         Role      `json:"role"`
	Branches     string    `json:"branches"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CleanUsername strips a domain suffix (user@corp.example → user) so the
// stored username is directory-clean.
func CleanUsername(username string) string {
	if i := strings.Index(username, "@"); i >= 0 {
		return username[:i]
	}
	return username
}
