package access

import "github.com/trezcool/shule/core"

var (
	ErrAuthRequired     = core.NewAuthenticationError("Authentication required")
	ErrAccessDenied     = core.NewAuthorizationError("Access denied")
	ErrSchoolIDRequired = core.NewRequiredError("School ID is required")
	ErrNoAssignedSchool = core.NewAuthorizationError("No school assigned to this administrator")
	ErrForeignSchool    = core.NewAuthorizationError("Access denied. You can only manage your assigned school.")
)

// Request is what Resolve needs to pick the target school of an operation.
// The requested school id is the first non-empty of SchoolID, PathSchoolID, PathID,
// QuerySchoolID, QueryID and ScopedSchoolID.
type Request struct {
	Caller Caller

	SchoolID       string // explicit operation parameter
	PathSchoolID   string
	PathID         string
	QuerySchoolID  string
	QueryID        string
	ScopedSchoolID string // set by upstream middleware

	DenySuperadmin  bool
	DenySchoolAdmin bool
}

// RequestedSchoolID returns the school id the request names, if any.
func (r Request) RequestedSchoolID() string {
	for _, id := range []string{r.SchoolID, r.PathSchoolID, r.PathID, r.QuerySchoolID, r.QueryID, r.ScopedSchoolID} {
		if id != "" {
			return id
		}
	}
	return ""
}

// Resolve returns the school the caller is authorized to act on. It never touches storage.
func Resolve(req Request) (string, error) {
	if req.Caller.Role == "" {
		return "", ErrAuthRequired
	}
	requested := req.RequestedSchoolID()

	switch {
	case IsSuperadmin(req.Caller.Role):
		if req.DenySuperadmin {
			return "", ErrAccessDenied
		}
		if requested == "" {
			return "", ErrSchoolIDRequired
		}
		return requested, nil

	case IsSchoolAdmin(req.Caller.Role):
		if req.DenySchoolAdmin {
			return "", ErrAccessDenied
		}
		if req.Caller.AssignedSchool == "" {
			return "", ErrNoAssignedSchool
		}
		if requested != "" && requested != req.Caller.AssignedSchool {
			return "", ErrForeignSchool
		}
		return req.Caller.AssignedSchool, nil

	default:
		return "", ErrAccessDenied
	}
}
