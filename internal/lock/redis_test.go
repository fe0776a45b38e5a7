package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLock(t *testing.T) (*RedisLock, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisLockWithClient(client), srv
}

func TestLockIsExclusive(t *testing.T) {
	l, _ := newLock(t)
	ctx := context.Background()

	ok, err := l.Lock(ctx, "tpl-1:2026-03-02T12:00:00Z", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.Lock(ctx, "tpl-1:2026-03-02T12:00:00Z", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire on the same key must fail")

	ok, err = l.Lock(ctx, "tpl-1:2026-03-02T13:00:00Z", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a different key is independent")
}

func TestUnlockReleases(t *testing.T) {
	l, _ := newLock(t)
	ctx := context.Background()

	ok, err := l.Lock(ctx, "key", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, l.Unlock(ctx, "key"))

	ok, err = l.Lock(ctx, "key", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLockExpiresAfterTTL(t *testing.T) {
	l, srv := newLock(t)
	ctx := context.Background()

	ok, err := l.Lock(ctx, "key", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	srv.FastForward(2 * time.Second)

	ok, err = l.Lock(ctx, "key", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "a crashed holder must not keep the key forever")
}
