package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/classroom"
	"github.com/trezcool/shule/core/school"
	"github.com/trezcool/shule/core/student"
	"github.com/trezcool/shule/core/user"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		UserSvc        *user.Service
		SchoolSvc      *school.Service
		ClassroomSvc   *classroom.Service
		StudentSvc     *student.Service
		Redis          *redis.Client // optional; backs the auth rate limiter
		DisableReqLogs bool
	}

	Server struct {
		conf     *core.Config
		logger   core.Logger
		app      *echo.Echo
		tokens   *TokenManager
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	srv := &Server{
		conf:     deps.Conf,
		logger:   deps.Logger,
		app:      echo.New(),
		tokens:   NewTokenManager(deps.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(srv.shutdown, os.Interrupt, syscall.SIGTERM)
	srv.setup(deps)
	return srv
}

func (srv *Server) setup(deps ServerDeps) {
	conf := deps.Conf
	app := srv.app

	app.HideBanner = true
	app.Debug = conf.Debug
	app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, srv.SignalShutdown)

	app.Pre(middleware.RemoveTrailingSlash())
	if !deps.DisableReqLogs {
		app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	app.Use(middleware.Secure())
	app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, headerToken},
	}))

	app.GET("/", srv.home)

	v1 := app.Group("/api/v1")
	v1.GET("", srv.home)

	auth := authMiddleware(srv.tokens, deps.UserSvc)
	limiter := newAuthRateLimiter(conf, deps.Redis, deps.Logger)

	registerUserAPI(v1, auth, limiter, srv.tokens, deps.UserSvc, deps.Validate)
	registerSchoolAPI(v1, auth, deps.SchoolSvc, deps.Validate)
	registerClassroomAPI(v1, auth, deps.ClassroomSvc, deps.Validate)
	registerStudentAPI(v1, auth, deps.StudentSvc, deps.Validate)
}

// Start listens on the configured address. A listener failure is reported on Errors().
func (srv *Server) Start() {
	if err := srv.app.Start(srv.conf.Server.Address); err != nil && err != http.ErrServerClosed {
		srv.errors <- err
	}
}

func (srv *Server) Errors() <-chan error {
	return srv.errors
}

func (srv *Server) ShutdownSignal() <-chan os.Signal {
	return srv.shutdown
}

// SignalShutdown asks the owner of the server to shut it down gracefully.
func (srv *Server) SignalShutdown() {
	select {
	case srv.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (srv *Server) Shutdown(ctx context.Context) error {
	signal.Stop(srv.shutdown)
	return srv.app.Shutdown(ctx)
}

func (srv *Server) Close() error {
	signal.Stop(srv.shutdown)
	return srv.app.Close()
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	srv.app.ServeHTTP(w, r)
}

func (srv *Server) home(ctx echo.Context) error {
	return respond(ctx, http.StatusOK, nil, "Welcome to "+srv.conf.AppName+" API!")
}
