// Package access resolves which school a caller may act on.
package access

// Roles
const (
	RoleSuperadmin  = "superadmin"
	RoleSchoolAdmin = "school_admin"
)

var AllRoles = []string{RoleSuperadmin, RoleSchoolAdmin}

// Caller is the authenticated identity an operation runs for.
type Caller struct {
	UserID         string
	Role           string
	AssignedSchool string
}

func (c Caller) IsZero() bool {
	return c == Caller{}
}

func IsSuperadmin(role string) bool {
	return role == RoleSuperadmin
}

func IsSchoolAdmin(role string) bool {
	return role == RoleSchoolAdmin
}

func IsValidRole(role string) bool {
	return IsSuperadmin(role) || IsSchoolAdmin(role)
}

// RequiresSchoolAssignment reports whether users with role must be assigned to a school.
func RequiresSchoolAssignment(role string) bool {
	return IsSchoolAdmin(role)
}
