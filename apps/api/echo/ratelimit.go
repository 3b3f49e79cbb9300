package echoapi

import (
	"context"
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/trezcool/shule/core"
)

const authRateLimitPrefix = "rl:auth:"

// redisRateLimiterStore is a fixed window counter shared by every API instance.
type redisRateLimiterStore struct {
	client *redis.Client
	prefix string
	max    int64
	window time.Duration
	logger core.Logger
}

var _ middleware.RateLimiterStore = (*redisRateLimiterStore)(nil)

// Allow counts a request of identifier in the current window.
// Requests are let through when redis is unavailable.
func (s *redisRateLimiterStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	key := s.prefix + identifier
	var incr *redis.IntCmd
	// counter and expiry go in one MULTI/EXEC; EXPIRE NX keeps the running window and repairs a key left without a TTL
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, s.window)
		return nil
	})
	if err != nil {
		s.logger.Warn(fmt.Sprintf("rate limiter: counting %s: %v", key, err), err)
		return true, nil
	}
	count := incr.Val()
	return count <= s.max, nil
}

func newRateLimiterStore(conf *core.Config, client *redis.Client, logger core.Logger) middleware.RateLimiterStore {
	if client != nil {
		return &redisRateLimiterStore{
			client: client,
			prefix: conf.Cache.Prefix + authRateLimitPrefix,
			max:    int64(conf.Auth.RateLimitMax),
			window: conf.Auth.RateLimitWindow,
			logger: logger,
		}
	}
	return middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(float64(conf.Auth.RateLimitMax) / conf.Auth.RateLimitWindow.Seconds()),
		Burst:     conf.Auth.RateLimitMax,
		ExpiresIn: conf.Auth.RateLimitWindow,
	})
}

// newAuthRateLimiter limits the requests a client IP can make to the auth endpoints.
func newAuthRateLimiter(conf *core.Config, client *redis.Client, logger core.Logger) echo.MiddlewareFunc {
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: newRateLimiterStore(conf, client, logger),
		DenyHandler: func(ctx echo.Context, identifier string, err error) error {
			return errTooManyLogins
		},
	})
}
