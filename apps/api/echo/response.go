package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/shule/core"
)

// Response is the envelope of every API response.
type Response struct {
	OK      bool        `json:"ok"`
	Data    interface{} `json:"data"`
	Errors  []string    `json:"errors"`
	Message string      `json:"message"`
}

func respond(ctx echo.Context, code int, data interface{}, msg ...string) error {
	if data == nil {
		data = echo.Map{}
	}
	res := Response{OK: true, Data: data, Errors: []string{}}
	if len(msg) > 0 {
		res.Message = msg[0]
	}
	return ctx.JSON(code, res)
}

// respondList sends a page of items under key, along with its pagination.
func respondList(ctx echo.Context, key string, items interface{}, pagination core.Pagination) error {
	return respond(ctx, http.StatusOK, echo.Map{key: items, "pagination": pagination})
}

func errorResponse(errs []string, msg string) Response {
	if errs == nil {
		errs = []string{}
	}
	return Response{OK: false, Data: echo.Map{}, Errors: errs, Message: msg}
}
