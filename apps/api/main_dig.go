package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	dig_container "github.com/trezcool/shule/apps/api/di/dig"
	echoapi "github.com/trezcool/shule/apps/api/echo"
	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type appParams struct {
	dig.In
	Conf          *core.Config
	APILogger     core.Logger
	DBLoggerParam dig_container.DBLoggerParam
	DB            io.Closer `name:"db"`
	Redis         *redis.Client
	Validate      *validator.Validate
	Translator    ut.Translator
	Server        *echoapi.Server
}

// startWithDig serves the API until a shutdown signal, then releases every handle.
// It returns the server error that stopped it, if any.
func startWithDig() error {
	c := dig_container.New()

	var runErr error
	must(c.Invoke(func(p appParams) {
		conf, apiLogger, server := p.Conf, p.APILogger, p.Server

		// =========================================================================
		// Initialize App

		apiLogger.Info(startupInfo(conf, p.Redis))

		core.InitValidators(p.Validate, p.Translator)
		user.InitValidators(p.Validate, p.Translator)

		// released last to first: reports logged while closing the stores still reach rollbar
		var handles closers
		handles.addLogger("rollbar", apiLogger)
		handles.add("database", p.DB)
		if p.Redis != nil {
			handles.add("redis", p.Redis)
		}
		defer func() {
			if err := handles.closeAll(p.DBLoggerParam.Logger); err != nil {
				log.Printf("shutdown: %v", err)
			}
		}()
		defer apiLogger.Info("Application stopped")

		// =========================================================================
		// Start Debug Service
		//
		// /debug/vars - Added to the default mux by importing the expvar package.

		publishDebugVars(conf, p.Redis)

		go func() {
			if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
				apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
			}
		}()

		// =========================================================================
		// Start API Service

		go func() {
			server.Start()
		}()

		// =========================================================================
		// Shutdown

		select {
		case err := <-server.Errors():
			runErr = errors.Wrap(err, "server error")
			apiLogger.Error(runErr.Error(), runErr)

		case sig := <-server.ShutdownSignal():
			apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

			// in-flight requests, including rate limited auth calls hitting redis, get a deadline
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

				if err = server.Close(); err != nil {
					apiLogger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
				}
			}
		}
	}))
	return runErr
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
