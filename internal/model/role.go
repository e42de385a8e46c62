package model

import "strings"

// Role names seeded at startup.
const (
	RoleAdmin    = "Admin"
	RoleStudent  = "Student"
	RoleLecturer = "Lecturer"
)

// RoleCode is the numeric role identifier used on the wire towards the
// profile service.
type RoleCode byte

const (
	RoleCodeAdmin    RoleCode = 1
	RoleCodeStudent  RoleCode = 2
	RoleCodeLecturer RoleCode = 3
)

// SeedRoles lists the reference roles in insertion order.
var SeedRoles = []string{RoleAdmin, RoleStudent, RoleLecturer}

// Role represents a row in the `roles` table.  Roles are immutable
// reference data: they are inserted once by the seeder and only read
// afterwards.
//
// Fields:
//  ID             – uuid primary key.
//  Name           – display name (Admin, Student, Lecturer).
//  NormalizedName – upper-cased name used for lookups.
type Role struct {
	ID             string // roles.id
	Name           string // roles.name
	NormalizedName string // roles.normalized_name
	Audit
}

// NewRole builds a role with its normalized name filled in.
func NewRole(id, name string) Role {
	return Role{ID: id, Name: name, NormalizedName: strings.ToUpper(name)}
}
