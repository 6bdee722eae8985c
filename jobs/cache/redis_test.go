package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/nrwiersma/worker/jobs/cache"
	"github.com/nrwiersma/worker/jobs/event"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available: %v", err)
	}
	client.FlushDB(ctx)

	t.Cleanup(func() {
		client.FlushDB(ctx)
		_ = client.Close()
	})

	return client
}

func TestRedis_PutGet(t *testing.T) {
	ctx := context.Background()
	c := cache.NewRedis(newRedisClient(t), "", cache.Descriptor{TTL: time.Minute})
	rec := event.Record{
		JobID:   1,
		Name:    "test",
		Tags:    []string{"a"},
		Code:    event.CodeFailed,
		Status:  event.StatusFailed,
		Message: "bad",
		Error:   "boom",
		Payload: "data",
	}

	err := c.Put(ctx, "a", rec)
	require.NoError(t, err)

	got, ok, err := c.Get(ctx, "a")

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestRedis_GetMissing(t *testing.T) {
	c := cache.NewRedis(newRedisClient(t), "", cache.Descriptor{})

	_, ok, err := c.Get(context.Background(), "a")

	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedis_EvictAll(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)
	c := cache.NewRedis(client, "test:", cache.Descriptor{})
	require.NoError(t, c.Put(ctx, "a", event.Record{JobID: 1}))
	require.NoError(t, c.Put(ctx, "b", event.Record{JobID: 2}))
	require.NoError(t, client.Set(ctx, "other", "x", 0).Err())

	require.NoError(t, c.Evict(ctx, "a"))
	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok)

	require.NoError(t, c.EvictAll(ctx))

	_, ok, _ = c.Get(ctx, "b")
	assert.False(t, ok)
	n, err := client.Exists(ctx, "other").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
