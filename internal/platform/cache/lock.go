package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained is returned when another holder owns the key.
var ErrLockNotObtained = errors.New("platform/cache: lock not obtained")

const defaultLockTTL = 30 * time.Second

// Locker hands out short-lived exclusive locks keyed by string.
type Locker struct {
	client *redislock.Client
	prefix string
	ttl    time.Duration
}

// NewLocker builds a Locker. Keys are namespaced with prefix.
func NewLocker(rdb redis.UniversalClient, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Locker{client: redislock.New(rdb), prefix: prefix, ttl: ttl}
}

// Acquire obtains the lock for key without waiting. The returned release func is
// safe to call once the protected work has finished.
func (l *Locker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	if l == nil {
		return func(context.Context) error { return nil }, nil
	}
	lock, err := l.client.Obtain(ctx, l.prefix+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("%w: %s", ErrLockNotObtained, key)
	}
	if err != nil {
		return nil, fmt.Errorf("platform/cache: obtain lock: %w", err)
	}
	return func(ctx context.Context) error {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			return fmt.Errorf("platform/cache: release lock: %w", err)
		}
		return nil
	}, nil
}
