package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core/access"
	"github.com/trezcool/shule/core/school"
)

func superadminMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			caller := contextCaller(ctx)
			if caller.IsZero() {
				return access.ErrAuthRequired
			}
			if !access.IsSuperadmin(caller.Role) {
				return school.ErrSuperadminRequired
			}
			return next(ctx)
		}
	}
}
