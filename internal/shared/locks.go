package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when another worker holds the lock.
var ErrLockBusy = fmt.Errorf("%w: resource is busy, retry shortly", ErrConflict)

// Locker serialises critical sections across processes using Redis.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewLocker constructs a Locker. A nil client yields a Locker that never blocks.
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	l := &Locker{ttl: ttl}
	if client != nil {
		l.client = redislock.New(client)
	}
	return l
}

// WithLock runs fn while holding key.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if l == nil || l.client == nil {
		return fn(ctx)
	}
	lock, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			return ErrLockBusy
		}
		return fmt.Errorf("obtain lock %s: %w", key, err)
	}
	defer func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}()
	return fn(ctx)
}

// ProductionLockKey guards processing of a single production run.
func ProductionLockKey(scheduleID int64) string {
	return fmt.Sprintf("lock:production:%d", scheduleID)
}

// PurchaseLockKey guards a purchase submission keyed by its idempotency key.
func PurchaseLockKey(key string) string {
	return "lock:purchase:" + key
}

// JobLockKey guards singleton background jobs.
func JobLockKey(name string) string {
	return "lock:job:" + name
}

// InventoryItemLockKey guards manual postings against one item.
func InventoryItemLockKey(itemID int64) string {
	return fmt.Sprintf("lock:inventory:item:%d", itemID)
}
