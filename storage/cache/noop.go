package cache

import (
	"context"
	"time"

	"github.com/trezcool/shule/core"
)

// noopCache never stores anything. It is used when no redis server is configured.
type noopCache struct{}

var _ core.Cache = noopCache{}

func NewNoopCache() core.Cache {
	return noopCache{}
}

func (noopCache) Get(context.Context, string, interface{}) (bool, error)        { return false, nil }
func (noopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (noopCache) Delete(context.Context, ...string) error                       { return nil }
