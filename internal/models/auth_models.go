package models

import "strings"

// Role is the authorization role of an acting principal.
type Role string

const (
	RoleTeacher       Role = "teacher"
	RoleLabTechnician Role = "lab_technician"
	RoleStorekeeper   Role = "storekeeper"
	RoleLibrarian     Role = "librarian"
	RoleAdmin         Role = "admin"
)

// ParseRole normalizes a role string. "labtech" is accepted for tokens minted
// by older clients.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleTeacher, RoleLabTechnician, RoleStorekeeper, RoleLibrarian, RoleAdmin:
		return r, true
	case "labtech":
		return RoleLabTechnician, true
	default:
		return "", false
	}
}

// Principal identifies the caller of a mutating operation.
// Its role is supplied by the authorization gate, never by request payloads.
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// RoleSet is an allow-list of roles.
type RoleSet map[Role]struct{}

// NewRoleSet builds a RoleSet from the given roles.
func NewRoleSet(roles ...Role) RoleSet {
	set := make(RoleSet, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

// Has reports whether r is in the set.
func (s RoleSet) Has(r Role) bool {
	_, ok := s[r]
	return ok
}
