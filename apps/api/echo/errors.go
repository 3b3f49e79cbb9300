package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

const msgValidationFailed = "Validation failed"

var (
	errTokenMissing  = echo.NewHTTPError(http.StatusUnauthorized, "Authentication required. Please provide a token in the request headers.")
	errTokenInvalid  = echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
	errUserInactive  = echo.NewHTTPError(http.StatusForbidden, "User account is inactive or suspended")
	errTooManyLogins = echo.NewHTTPError(http.StatusTooManyRequests, "Too many authentication attempts, please try again later.")
)

// statusCodes maps domain error kinds to HTTP statuses.
var statusCodes = map[core.ErrorKind]int{
	core.KindAuthentication:   http.StatusUnauthorized,
	core.KindAuthorization:    http.StatusForbidden,
	core.KindNotFound:         http.StatusNotFound,
	core.KindConflict:         http.StatusConflict,
	core.KindValidation:       http.StatusUnprocessableEntity,
	core.KindCapacityExceeded: http.StatusBadRequest,
	core.KindInvalidState:     http.StatusBadRequest,
}

// StatusCode returns the HTTP status an error of kind is reported with.
func StatusCode(kind core.ErrorKind) int {
	if code, ok := statusCodes[kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code    int
			message string
			errs    []string

			httpErr *echo.HTTPError
			valErrs validator.ValidationErrors
			fldErr  *core.ValidationError
			domErr  *core.Error
		)

		switch {
		case errors.As(err, &httpErr):
			if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
				httpErr = herr
			}
			code = httpErr.Code
			message = fmt.Sprint(httpErr.Message)
			errs = []string{message}
		case errors.As(err, &valErrs):
			code = http.StatusUnprocessableEntity
			message = msgValidationFailed
			for _, vErr := range valErrs {
				errs = append(errs, vErr.Translate(translator))
			}
		case errors.As(err, &fldErr):
			code = http.StatusUnprocessableEntity
			message = msgValidationFailed
			for _, fErr := range fldErr.Fields {
				errs = append(errs, fErr.Error)
			}
			if len(errs) == 0 {
				errs = []string{fldErr.Error()}
			}
		case errors.As(err, &domErr):
			code = StatusCode(domErr.Kind)
			message = domErr.Message
			errs = []string{message}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			message = http.StatusText(http.StatusInternalServerError)
			errs = []string{message}

			args := []interface{}{errors.Wrap(err, message)}
			if usr, ok := contextUser(ctx); ok {
				args = append(args, usr)
			}
			logger.Error(fmt.Sprintf("%s %s: %v", ctx.Request().Method, ctx.Path(), err), args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, errorResponse(errs, message))
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
