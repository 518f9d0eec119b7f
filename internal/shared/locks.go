package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another holder owns the lock.
var ErrLockHeld = errors.New("lock already held")

// LedgerLockKey builds redis keys guarding a ledger rebuild.
func LedgerLockKey(family, shiftDate string) string {
	return fmt.Sprintf("ledger:%s:%s:lock", family, shiftDate)
}

// SnapshotLockKey builds redis keys guarding a P&L snapshot build.
func SnapshotLockKey(periodStart, periodEnd string) string {
	return fmt.Sprintf("pnl:%s:%s:lock", periodStart, periodEnd)
}

// RedisLocker hands out short-lived exclusive locks. A lock is never retried:
// a concurrent rebuild of the same key is reported, not waited for.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker constructs a locker; ttl bounds how long a crashed holder blocks others.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if client == nil {
		return &RedisLocker{ttl: ttl}
	}
	return &RedisLocker{client: redislock.New(client), ttl: ttl}
}

// Acquire takes the lock or returns ErrLockHeld. Releasing a lock that has
// already expired is not an error.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	if key == "" {
		return nil, errors.New("lock key required")
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockHeld
	}
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return err
		}
		return nil
	}, nil
}
