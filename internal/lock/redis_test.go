package lock_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/lock"
)

func newRedisLock(t *testing.T, ttl time.Duration) (*lock.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.NewRedis(client, ttl, nil), mr
}

func TestRedis_Acquire(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLock(t, time.Minute)

	release, err := l.Acquire(ctx, "2025-03-14")
	require.NoError(t, err)
	assert.True(t, mr.Exists("recon:lock:2025-03-14"))
	assert.Equal(t, time.Minute, mr.TTL("recon:lock:2025-03-14"))

	_, err = l.Acquire(ctx, "2025-03-14")
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	other, err := l.Acquire(ctx, "2025-03-15")
	require.NoError(t, err)
	require.NoError(t, other(ctx))

	require.NoError(t, release(ctx))
	assert.False(t, mr.Exists("recon:lock:2025-03-14"))
	require.NoError(t, release(ctx), "release is idempotent")

	again, err := l.Acquire(ctx, "2025-03-14")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedis_ExpiredHolderCannotReleaseSuccessor(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLock(t, time.Minute)

	stale, err := l.Acquire(ctx, "2025-03-14")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	current, err := l.Acquire(ctx, "2025-03-14")
	require.NoError(t, err)

	require.NoError(t, stale(ctx))
	assert.True(t, mr.Exists("recon:lock:2025-03-14"), "successor keeps the lock")

	_, err = l.Acquire(ctx, "2025-03-14")
	assert.ErrorIs(t, err, domain.ErrRunInProgress)

	require.NoError(t, current(ctx))
	assert.False(t, mr.Exists("recon:lock:2025-03-14"))
}

func TestRedis_ServerUnavailable(t *testing.T) {
	l, mr := newRedisLock(t, time.Minute)
	mr.Close()

	_, err := l.Acquire(context.Background(), "2025-03-14")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrRunInProgress)
}
