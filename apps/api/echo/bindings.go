package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/access"
)

const (
	paramSchoolID    = "schoolId"
	paramClassroomID = "classroomId"
	paramStudentID   = "studentId"
	paramUserID      = "userId"
)

// bindPage reads the `page` and `limit` query params. Malformed values fall back to defaults.
func bindPage(ctx echo.Context) core.Page {
	var page core.Page
	_ = echo.QueryParamsBinder(ctx).
		Int("page", &page.Page).
		Int("limit", &page.Limit).
		BindErrors()
	page.Clean()
	return page
}

// accessRequest collects what access.Resolve needs from the request:
// the caller and any school id named in the path or the query.
func accessRequest(ctx echo.Context) access.Request {
	return access.Request{
		Caller:        contextCaller(ctx),
		PathSchoolID:  ctx.Param(paramSchoolID),
		QuerySchoolID: ctx.QueryParam("schoolId"),
		QueryID:       ctx.QueryParam("id"),
	}
}
