package main

import (
	"expvar"
	"fmt"
	"io"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/shule/core"
)

// closer is a handle released on shutdown.
type closer struct {
	name  string
	close func() error
}

// closers releases handles in the reverse order they were added.
type closers []closer

func (cs *closers) add(name string, c io.Closer) {
	if c == nil {
		return
	}
	*cs = append(*cs, closer{name: name, close: c.Close})
}

// addLogger flushes a logger buffering remote reports.
func (cs *closers) addLogger(name string, logger core.Logger) {
	if l, ok := logger.(interface{ Close() }); ok {
		*cs = append(*cs, closer{name: name, close: func() error {
			l.Close()
			return nil
		}})
	}
}

// closeAll closes every handle, even when some fail, and returns the first failure.
func (cs closers) closeAll(logger core.Logger) error {
	var first error
	for i := len(cs) - 1; i >= 0; i-- {
		c := cs[i]
		if err := c.close(); err != nil {
			err = errors.Wrapf(err, "closing %s", c.name)
			logger.Error(err.Error(), err)
			if first == nil {
				first = err
			}
		}
	}
	return first
}

func cacheBackend(client *redis.Client) string {
	if client == nil {
		return "none"
	}
	return "redis"
}

func mailer(conf *core.Config) string {
	if conf.Debug {
		return "console"
	}
	return "sendgrid"
}

// debugVars are served under /debug/vars.
func debugVars(conf *core.Config, client *redis.Client) map[string]expvar.Func {
	vars := map[string]expvar.Func{
		"build":    func() interface{} { return conf.Build },
		"env":      func() interface{} { return conf.Env },
		"database": func() interface{} { return conf.Database.Engine },
		"cache":    func() interface{} { return cacheBackend(client) },
		"mailer":   func() interface{} { return mailer(conf) },
	}
	if client != nil {
		vars["redisPool"] = func() interface{} {
			stats := client.PoolStats()
			return map[string]uint32{
				"hits":       stats.Hits,
				"misses":     stats.Misses,
				"timeouts":   stats.Timeouts,
				"totalConns": stats.TotalConns,
				"idleConns":  stats.IdleConns,
			}
		}
	}
	return vars
}

func publishDebugVars(conf *core.Config, client *redis.Client) {
	for name, fn := range debugVars(conf, client) {
		expvar.Publish(name, fn)
	}
}

func startupInfo(conf *core.Config, client *redis.Client) string {
	return fmt.Sprintf("Application initializing : version %q, database %s, cache %s, mailer %s",
		conf.Build, conf.Database.Engine, cacheBackend(client), mailer(conf))
}
