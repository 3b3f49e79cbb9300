package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/school"
)

type schoolApi struct {
	svc      *school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, auth echo.MiddlewareFunc, svc *school.Service, validate *validator.Validate) {
	api := schoolApi{
		svc:      svc,
		validate: validate,
	}

	sg := g.Group("/schools", auth)
	sg.POST("", api.create)
	sg.GET("", api.query)
	sg.GET("/deleted", api.queryDeleted)

	// detail endpoints
	dg := sg.Group("/:schoolId")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/restore", api.restore)
	dg.DELETE("/permanent", api.destroyPermanently)
	dg.POST("/administrators", api.assignAdministrator)
}

// Handlers

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), contextCaller(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return respond(ctx, http.StatusCreated, echo.Map{"school": s})
}

func (api *schoolApi) query(ctx echo.Context) error {
	var filter school.QueryFilter
	_ = echo.QueryParamsBinder(ctx).String("status", &filter.Status).BindError()
	filter.Clean()

	schools, pagination, err := api.svc.Query(ctx.Request().Context(), contextCaller(ctx), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return respondList(ctx, "schools", schools, pagination)
}

func (api *schoolApi) queryDeleted(ctx echo.Context) error {
	schools, pagination, err := api.svc.QueryDeleted(ctx.Request().Context(), contextCaller(ctx), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying deleted schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return respondList(ctx, "schools", schools, pagination)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), contextCaller(ctx), ctx.Param(paramSchoolID))
	if err != nil {
		return errors.Wrap(err, "getting school")
	}
	return respond(ctx, http.StatusOK, echo.Map{"school": s})
}

func (api *schoolApi) update(ctx echo.Context) error {
	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Update(ctx.Request().Context(), contextCaller(ctx), ctx.Param(paramSchoolID), data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return respond(ctx, http.StatusOK, echo.Map{"school": s})
}

func (api *schoolApi) destroy(ctx echo.Context) error {
	s, err := api.svc.Delete(ctx.Request().Context(), contextCaller(ctx), ctx.Param(paramSchoolID))
	if err != nil {
		return errors.Wrap(err, "deleting school")
	}
	return respond(ctx, http.StatusOK, echo.Map{"school": s}, "School moved to recycle bin")
}

func (api *schoolApi) restore(ctx echo.Context) error {
	s, err := api.svc.Restore(ctx.Request().Context(), contextCaller(ctx), ctx.Param(paramSchoolID))
	if err != nil {
		return errors.Wrap(err, "restoring school")
	}
	return respond(ctx, http.StatusOK, echo.Map{"school": s}, "School restored successfully")
}

func (api *schoolApi) destroyPermanently(ctx echo.Context) error {
	if err := api.svc.PermanentlyDelete(ctx.Request().Context(), contextCaller(ctx), ctx.Param(paramSchoolID)); err != nil {
		return errors.Wrap(err, "permanently deleting school")
	}
	return respond(ctx, http.StatusOK, nil, "School permanently deleted")
}

func (api *schoolApi) assignAdministrator(ctx echo.Context) error {
	var data school.AssignAdministrator
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AssignAdministrator")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.AssignAdministrator(ctx.Request().Context(), contextCaller(ctx), ctx.Param(paramSchoolID), data)
	if err != nil {
		return errors.Wrap(err, "assigning administrator")
	}
	return respond(ctx, http.StatusOK, echo.Map{"school": s}, "Administrator assigned successfully")
}
