package auth

import (
	"fmt"
	"sort"
	"strings"
)

// Role is the fixed set of staff roles a user can hold. Permission
// resolution and clinic-access overrides key off this value, so new roles
// are added here and in rolePermissions, never inferred at runtime.
type Role string

const (
	RoleSuperAdmin        Role = "super_admin"
	RoleOrganizationAdmin Role = "organization_admin"
	RoleClinicAdmin       Role = "clinic_admin"
	RoleVeterinarian      Role = "veterinarian"
	RoleTechnician        Role = "technician"
	RoleReceptionist      Role = "receptionist"
)

// PermissionAll is the universal wildcard grant.
const PermissionAll = "*"

var allRoles = []Role{
	RoleSuperAdmin,
	RoleOrganizationAdmin,
	RoleClinicAdmin,
	RoleVeterinarian,
	RoleTechnician,
	RoleReceptionist,
}

// ParseRole normalizes and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.TrimSpace(strings.ToLower(s)))
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, s)
	}
	return role, nil
}

// Roles returns the full role enumeration.
func Roles() []Role {
	out := make([]Role, len(allRoles))
	copy(out, allRoles)
	return out
}

// Valid reports whether the role belongs to the fixed enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleOrganizationAdmin, RoleClinicAdmin,
		RoleVeterinarian, RoleTechnician, RoleReceptionist:
		return true
	}
	return false
}

// OrganizationWide reports whether the role bypasses per-clinic grants.
// This is the single place the override set is defined.
func (r Role) OrganizationWide() bool {
	return r == RoleSuperAdmin || r == RoleOrganizationAdmin
}

// rolePermissions maps each role to its base grants. A trailing ".*"
// matches any permission sharing the prefix; "*" matches everything.
var rolePermissions = map[Role][]string{
	RoleSuperAdmin: {PermissionAll},

	RoleOrganizationAdmin: {
		"organizations.read",
		"organizations.update",
		"clinics.*",
		"users.*",
		"reports.read",
	},

	RoleClinicAdmin: {
		"clinics.read",
		"clinics.update",
		"users.read",
		"users.create",
		"users.update",
		"clients.*",
		"pets.*",
		"appointments.*",
		"medical_records.*",
		"reports.read",
	},

	RoleVeterinarian: {
		"clients.read",
		"pets.*",
		"appointments.*",
		"medical_records.*",
		"prescriptions.*",
		"lab_results.*",
		"vaccinations.*",
	},

	RoleTechnician: {
		"clients.read",
		"pets.read",
		"pets.update",
		"appointments.read",
		"appointments.update",
		"medical_records.read",
		"medical_records.create",
		"lab_results.read",
		"lab_results.create",
		"vaccinations.*",
	},

	RoleReceptionist: {
		"clients.*",
		"pets.read",
		"pets.create",
		"appointments.*",
		"billing.read",
		"billing.create",
	},
}

// PermissionSet is a resolved collection of grant strings.
type PermissionSet map[string]struct{}

// Resolve merges the base grants for role with any user-specific extras.
// Unknown roles resolve to an empty set so an unrecognized value fails safe.
func Resolve(role Role, extra []string) PermissionSet {
	base := rolePermissions[role]
	set := make(PermissionSet, len(base)+len(extra))
	for _, p := range base {
		set[p] = struct{}{}
	}
	for _, p := range extra {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		set[p] = struct{}{}
	}
	return set
}

// Satisfies reports whether the set grants the required permission: the
// universal wildcard, an exact match, or a "prefix.*" grant whose prefix
// matches required up to and including the dot.
func (s PermissionSet) Satisfies(required string) bool {
	if required == "" {
		return false
	}
	if _, ok := s[PermissionAll]; ok {
		return true
	}
	if _, ok := s[required]; ok {
		return true
	}
	for grant := range s {
		if !strings.HasSuffix(grant, ".*") {
			continue
		}
		prefix := grant[:len(grant)-1] // keep the dot
		if strings.HasPrefix(required, prefix) {
			return true
		}
	}
	return false
}

// Strings returns the grants in sorted order, for token claims and API
// responses.
func (s PermissionSet) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
