package driverstate

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisLocker is a SETNX-based per-driver advisory lock, matching the
// teacher's redis.DriverPool.LockDriver pattern.
type RedisLocker struct {
	rdb     *redis.Client
	ttl     time.Duration
	retry   time.Duration
	timeout time.Duration
}

// NewRedisLocker builds a RedisLocker with sane defaults for a short
// critical section (shift/assignment transitions).
func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{
		rdb:     rdb,
		ttl:     5 * time.Second,
		retry:   25 * time.Millisecond,
		timeout: 2 * time.Second,
	}
}

// WithDriverLock holds the advisory lock for driverID for the duration of fn.
func (l *RedisLocker) WithDriverLock(ctx context.Context, driverID int64, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:driver:%d", driverID)

	deadline := time.Now().Add(l.timeout)
	for {
		ok, err := l.rdb.SetNX(ctx, key, 1, l.ttl).Result()
		if err != nil {
			return err
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("driverstate: timed out acquiring lock for driver %d", driverID)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.retry):
		}
	}

	defer l.rdb.Del(context.Background(), key)
	return fn(ctx)
}
