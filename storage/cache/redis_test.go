package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/shule/core"
)

type cachedSchool struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestCache(t *testing.T) (core.Cache, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	conf := &core.Config{}
	conf.Cache.Prefix = "test:"
	return NewRedisCache(client, conf), srv
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	c, srv := newTestCache(t)

	var got cachedSchool
	found, err := c.Get(ctx, "school:1", &got)
	require.NoError(t, err)
	assert.False(t, found)

	want := cachedSchool{ID: "1", Name: "Greenwood High"}
	require.NoError(t, c.Set(ctx, "school:1", want, time.Minute))
	assert.True(t, srv.Exists("test:school:1"))

	found, err = c.Get(ctx, "school:1", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	srv.FastForward(2 * time.Minute)
	found, err = c.Get(ctx, "school:1", &got)
	require.NoError(t, err)
	assert.False(t, found, "expired")

	require.NoError(t, c.Set(ctx, "school:2", want, time.Minute))
	require.NoError(t, c.Delete(ctx, "school:2", "school:3"))
	assert.False(t, srv.Exists("test:school:2"))
	require.NoError(t, c.Delete(ctx))
}

func TestRedisCache_CorruptedValue(t *testing.T) {
	c, srv := newTestCache(t)
	require.NoError(t, srv.Set("test:school:1", "{not json"))

	var got cachedSchool
	found, err := c.Get(context.Background(), "school:1", &got)
	assert.Error(t, err)
	assert.False(t, found)
}

func TestRedisCache_ServerDown(t *testing.T) {
	c, srv := newTestCache(t)
	srv.Close()

	var got cachedSchool
	_, err := c.Get(context.Background(), "school:1", &got)
	assert.Error(t, err)
	assert.Error(t, c.Delete(context.Background(), "school:1"))
}

func TestNoopCache(t *testing.T) {
	ctx := context.Background()
	c := NewNoopCache()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	var got string
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, c.Delete(ctx, "k"))
}
