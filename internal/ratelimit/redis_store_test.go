package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "test:"), mr
}

func TestRedisStore_CountsWithinWindow(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, resetAt, err := store.Increment(ctx, "user:1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.WithinDuration(t, time.Now().Add(time.Minute), resetAt, 2*time.Second)
	}

	assert.True(t, mr.Exists("test:user:1"))
	assert.Greater(t, mr.TTL("test:user:1"), time.Duration(0))
}

func TestRedisStore_WindowExpires(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	_, _, err := store.Increment(ctx, "ip:10.0.0.1", time.Minute)
	require.NoError(t, err)
	_, _, err = store.Increment(ctx, "ip:10.0.0.1", time.Minute)
	require.NoError(t, err)

	mr.FastForward(time.Minute + time.Second)

	got, _, err := store.Increment(ctx, "ip:10.0.0.1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestRedisStore_KeysAreIndependent(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	a, _, err := store.Increment(ctx, "user:a", time.Minute)
	require.NoError(t, err)
	b, _, err := store.Increment(ctx, "user:b", time.Minute)
	require.NoError(t, err)

	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(1), b)
}

func TestRedisStore_BacksLimiter(t *testing.T) {
	store, _ := newTestRedisStore(t)
	l, err := NewLimiter(store, 3, time.Minute)
	require.NoError(t, err)
	ctx := context.Background()

	var rejected int
	for i := 0; i < 4; i++ {
		if _, err := l.Allow(ctx, "user:1"); err != nil {
			rejected++
		}
	}
	assert.Equal(t, 1, rejected)
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newTestRedisStore(t)
	mr.Close()

	_, _, err := store.Increment(context.Background(), "user:1", time.Minute)
	assert.Error(t, err)
}
