package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/student"
)

type studentApi struct {
	svc      *student.Service
	validate *validator.Validate
}

// registerStudentAPI serves students at `/students` and `/schools/:schoolId/students`.
// Students are identified in paths by their record id or their student id.
func registerStudentAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *student.Service, validate *validator.Validate) {
	api := studentApi{
		svc:      svc,
		validate: validate,
	}

	for _, sg := range []*echo.Group{
		g.Group("/students", auth),
		g.Group("/schools/:schoolId/students", auth),
	} {
		sg.POST("", api.enroll)
		sg.GET("", api.query)
		sg.GET("/withdrawn", api.queryWithdrawn)
		sg.GET("/withdrawn/:studentId", api.retrieveWithdrawn)
		sg.GET("/:studentId", api.retrieve)
		sg.PUT("/:studentId", api.update)
		sg.POST("/:studentId/withdraw", api.withdraw)
		sg.POST("/:studentId/restore", api.restore)
		sg.POST("/:studentId/transfer", api.transfer)
	}
}

// Handlers

func (api *studentApi) enroll(ctx echo.Context) error {
	var data student.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Enroll(ctx.Request().Context(), accessRequest(ctx), data)
	if err != nil {
		return errors.Wrap(err, "enrolling student")
	}
	return respond(ctx, http.StatusCreated, echo.Map{"student": s}, "Student enrolled successfully")
}

func (api *studentApi) query(ctx echo.Context) error {
	var filter student.QueryFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	students, pagination, err := api.svc.Query(ctx.Request().Context(), accessRequest(ctx), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return respondList(ctx, "students", students, pagination)
}

func (api *studentApi) queryWithdrawn(ctx echo.Context) error {
	students, pagination, err := api.svc.QueryWithdrawn(ctx.Request().Context(), accessRequest(ctx), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying withdrawn students")
	}
	if students == nil {
		students = []student.Student{}
	}
	return respondList(ctx, "students", students, pagination)
}

func (api *studentApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramStudentID))
	if err != nil {
		return errors.Wrap(err, "getting student")
	}
	return respond(ctx, http.StatusOK, echo.Map{"student": s})
}

func (api *studentApi) retrieveWithdrawn(ctx echo.Context) error {
	s, err := api.svc.GetWithdrawn(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramStudentID))
	if err != nil {
		return errors.Wrap(err, "getting withdrawn student")
	}
	return respond(ctx, http.StatusOK, echo.Map{"student": s})
}

func (api *studentApi) update(ctx echo.Context) error {
	var data student.UpdateStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Update(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramStudentID), data)
	if err != nil {
		return errors.Wrap(err, "updating student")
	}
	return respond(ctx, http.StatusOK, echo.Map{"student": s})
}

func (api *studentApi) withdraw(ctx echo.Context) error {
	s, err := api.svc.Withdraw(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramStudentID))
	if err != nil {
		return errors.Wrap(err, "withdrawing student")
	}
	return respond(ctx, http.StatusOK, echo.Map{"student": s}, "Student withdrawn successfully")
}

func (api *studentApi) restore(ctx echo.Context) error {
	s, err := api.svc.Restore(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramStudentID))
	if err != nil {
		return errors.Wrap(err, "restoring student")
	}
	return respond(ctx, http.StatusOK, echo.Map{"student": s}, "Student restored successfully")
}

func (api *studentApi) transfer(ctx echo.Context) error {
	var data student.Transfer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Transfer")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Transfer(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramStudentID), data)
	if err != nil {
		return errors.Wrap(err, "transferring student")
	}
	return respond(ctx, http.StatusOK, echo.Map{"student": s}, "Student transferred successfully")
}
