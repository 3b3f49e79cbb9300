package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/classroom"
)

type classroomApi struct {
	svc      *classroom.Service
	validate *validator.Validate
}

// registerClassroomAPI serves classrooms at `/classrooms` and `/schools/:schoolId/classrooms`.
// On the top-level routes, superadmins name the school with the `schoolId` query param or body field.
func registerClassroomAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *classroom.Service, validate *validator.Validate) {
	api := classroomApi{
		svc:      svc,
		validate: validate,
	}

	for _, cg := range []*echo.Group{
		g.Group("/classrooms", auth),
		g.Group("/schools/:schoolId/classrooms", auth),
	} {
		cg.POST("", api.create)
		cg.GET("", api.query)
		cg.GET("/deleted", api.queryDeleted)
		cg.GET("/:classroomId", api.retrieve)
		cg.PUT("/:classroomId", api.update)
		cg.DELETE("/:classroomId", api.destroy)
		cg.POST("/:classroomId/restore", api.restore)
		cg.DELETE("/:classroomId/permanent", api.destroyPermanently)
	}
}

// Handlers

func (api *classroomApi) create(ctx echo.Context) error {
	var data classroom.NewClassroom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClassroom")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), accessRequest(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating classroom")
	}
	return respond(ctx, http.StatusCreated, echo.Map{"classroom": c})
}

func (api *classroomApi) query(ctx echo.Context) error {
	var filter classroom.QueryFilter
	if err := (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()

	classrooms, pagination, err := api.svc.Query(ctx.Request().Context(), accessRequest(ctx), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying classrooms")
	}
	if classrooms == nil {
		classrooms = []classroom.Classroom{}
	}
	return respondList(ctx, "classrooms", classrooms, pagination)
}

func (api *classroomApi) queryDeleted(ctx echo.Context) error {
	classrooms, pagination, err := api.svc.QueryDeleted(ctx.Request().Context(), accessRequest(ctx), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying deleted classrooms")
	}
	if classrooms == nil {
		classrooms = []classroom.Classroom{}
	}
	return respondList(ctx, "classrooms", classrooms, pagination)
}

func (api *classroomApi) retrieve(ctx echo.Context) error {
	c, err := api.svc.Get(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramClassroomID))
	if err != nil {
		return errors.Wrap(err, "getting classroom")
	}
	return respond(ctx, http.StatusOK, echo.Map{"classroom": c})
}

func (api *classroomApi) update(ctx echo.Context) error {
	var data classroom.UpdateClassroom
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateClassroom")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Update(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramClassroomID), data)
	if err != nil {
		return errors.Wrap(err, "updating classroom")
	}
	return respond(ctx, http.StatusOK, echo.Map{"classroom": c})
}

func (api *classroomApi) destroy(ctx echo.Context) error {
	c, err := api.svc.Delete(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramClassroomID))
	if err != nil {
		return errors.Wrap(err, "deleting classroom")
	}
	return respond(ctx, http.StatusOK, echo.Map{"classroom": c}, "Classroom moved to recycle bin")
}

func (api *classroomApi) restore(ctx echo.Context) error {
	c, err := api.svc.Restore(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramClassroomID))
	if err != nil {
		return errors.Wrap(err, "restoring classroom")
	}
	return respond(ctx, http.StatusOK, echo.Map{"classroom": c}, "Classroom restored successfully")
}

func (api *classroomApi) destroyPermanently(ctx echo.Context) error {
	err := api.svc.PermanentlyDelete(ctx.Request().Context(), accessRequest(ctx), ctx.Param(paramClassroomID))
	if err != nil {
		return errors.Wrap(err, "permanently deleting classroom")
	}
	return respond(ctx, http.StatusOK, nil, "Classroom permanently deleted")
}
