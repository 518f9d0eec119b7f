package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, ttl), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	ctx := context.Background()
	key := LedgerLockKey("ROLLS", "2025-08-09")

	release, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, key)
	require.ErrorIs(t, err, ErrLockHeld)

	require.NoError(t, release(ctx))

	again, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLockerExpires(t *testing.T) {
	locker, mr := newTestLocker(t, 5*time.Second)
	ctx := context.Background()
	key := SnapshotLockKey("2025-08-01", "2025-08-31")

	stale, err := locker.Acquire(ctx, key)
	require.NoError(t, err)
	mr.FastForward(6 * time.Second)

	fresh, err := locker.Acquire(ctx, key)
	require.NoError(t, err)

	// The stale holder must not release the new owner's lock.
	require.NoError(t, stale(ctx))
	_, err = locker.Acquire(ctx, key)
	require.ErrorIs(t, err, ErrLockHeld)
	require.NoError(t, fresh(ctx))
}

func TestNilLockerIsNoop(t *testing.T) {
	var locker *RedisLocker
	release, err := locker.Acquire(context.Background(), "k")
	require.NoError(t, err)
	require.NoError(t, release(context.Background()))
}

func TestRedisLockerRejectsEmptyKey(t *testing.T) {
	locker, _ := newTestLocker(t, time.Minute)
	_, err := locker.Acquire(context.Background(), "")
	require.Error(t, err)
}
