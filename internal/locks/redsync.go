// Package locks provides distributed mutual exclusion using the Redlock
// implementation from go-redsync/redsync/v4, so that only one receiver
// instance runs a scheduled job at a time.
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"

	apperrors "coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/redis"
)

// ErrNotAcquired is returned when another holder owns the lock.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker hands out exclusive, expiring locks.
type Locker interface {
	// TryAcquire makes a single attempt and fails with ErrNotAcquired when
	// the lock is held elsewhere.
	TryAcquire(ctx context.Context, key string, expiration time.Duration) (Lock, error)
}

// Lock is a held lock. It expires on its own if never released.
type Lock interface {
	Key() string
	Release(ctx context.Context) error
}

// RedsyncManager acquires locks against a single Redis node.
type RedsyncManager struct {
	redsync *redsync.Redsync
}

func NewRedsyncManager(redisClient *redis.Client) (*RedsyncManager, error) {
	if redisClient == nil {
		return nil, apperrors.ConfigError("redis client is required")
	}

	pool := goredis.NewPool(redisClient.Raw())
	return &RedsyncManager{redsync: redsync.New(pool)}, nil
}

func (rm *RedsyncManager) TryAcquire(ctx context.Context, key string, expiration time.Duration) (Lock, error) {
	mutex := rm.redsync.NewMutex(
		fmt.Sprintf("lock:%s", key),
		redsync.WithExpiry(expiration),
		redsync.WithTries(1),
	)

	if err := mutex.TryLockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
	}

	return &redsyncLock{mutex: mutex, key: key}, nil
}

type redsyncLock struct {
	mutex *redsync.Mutex
	key   string
}

func (l *redsyncLock) Key() string { return l.key }

func (l *redsyncLock) Release(ctx context.Context) error {
	ok, err := l.mutex.UnlockContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("lock %s expired before release", l.key)
	}
	return nil
}

var _ Locker = (*RedsyncManager)(nil)
