package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/user"
)

type userApi struct {
	svc      *user.Service
	tokens   *TokenManager
	validate *validator.Validate
}

func registerUserAPI(
	g *echo.Group,
	auth echo.MiddlewareFunc,
	limiter echo.MiddlewareFunc,
	tokens *TokenManager,
	svc *user.Service,
	validate *validator.Validate,
) {
	api := userApi{
		svc:      svc,
		tokens:   tokens,
		validate: validate,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login, limiter)
	ag.POST("/token", api.token, limiter)

	// authed endpoints
	ag.POST("/register", api.register, auth, superadminMiddleware())
	ag.GET("/profile", api.profile, auth)

	g.PUT("/users/:userId/status", api.setStatus, auth, superadminMiddleware())
}

// Handlers

func (api *userApi) login(ctx echo.Context) error {
	var creds user.Credentials
	if err := ctx.Bind(&creds); err != nil {
		return errors.Wrap(err, "binding to Credentials")
	}
	if err := creds.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), creds)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	longToken, err := api.tokens.GenLongToken(usr)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, echo.Map{"user": usr, "longToken": longToken})
}

// token exchanges a long token for a short one, bound to the client's device.
func (api *userApi) token(ctx echo.Context) error {
	token := extractToken(ctx.Request())
	if token == "" {
		return errTokenMissing
	}
	claims, err := api.tokens.VerifyLongToken(token)
	if err != nil {
		return errTokenInvalid
	}
	if _, err = loadTokenUser(ctx, api.svc, claims.UserID, claims.UserKey); err != nil {
		return err
	}

	shortToken, err := api.tokens.GenShortToken(claims, ctx.Request().UserAgent())
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusOK, echo.Map{"shortToken": shortToken})
}

func (api *userApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	longToken, err := api.tokens.GenLongToken(usr)
	if err != nil {
		return err
	}
	return respond(ctx, http.StatusCreated, echo.Map{"user": usr, "longToken": longToken})
}

func (api *userApi) profile(ctx echo.Context) error {
	usr, _ := contextUser(ctx)
	return respond(ctx, http.StatusOK, echo.Map{"user": usr})
}

func (api *userApi) setStatus(ctx echo.Context) error {
	var data user.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.SetStatus(ctx.Request().Context(), ctx.Param(paramUserID), data)
	if err != nil {
		return errors.Wrap(err, "setting user status")
	}
	return respond(ctx, http.StatusOK, echo.Map{"user": usr}, "User status updated successfully")
}
