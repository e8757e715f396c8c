package firmstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DistributedLock provides Redis-based locking for coordinating jobs across
// processes: seeding, index rebuilds, scrape imports. It does not guard the
// document write path, which stays last-write-wins.
type DistributedLock struct {
	redis      *redis.Client
	keyPrefix  string
	defaultTTL time.Duration
}

// NewDistributedLock creates a lock manager on the given Redis client
func NewDistributedLock(rdb *redis.Client, keyPrefix string) *DistributedLock {
	return &DistributedLock{
		redis:      rdb,
		keyPrefix:  keyPrefix,
		defaultTTL: 30 * time.Second,
	}
}

// Lock acquires the named lock, or fails with ErrLockHeld if another process
// holds it. Returns a release function that MUST be called.
func (l *DistributedLock) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if ttl == 0 {
		ttl = l.defaultTTL
	}

	lockKey := fmt.Sprintf("%s:lock:%s", l.keyPrefix, key)
	lockValue := fmt.Sprintf("%d", time.Now().UnixNano())

	success, err := l.redis.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !success {
		return nil, WithContext(ErrLockHeld, map[string]interface{}{
			"key": key, "ttl": ttl,
		})
	}

	release := func() {
		// Background context so release works even if the caller's context
		// was cancelled. Delete only if we still own the lock.
		script := `
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			else
				return 0
			end
		`
		l.redis.Eval(context.Background(), script, []string{lockKey}, lockValue).Result()
	}
	return release, nil
}

// LockWithRetry retries lock acquisition with exponential backoff, for jobs
// that would rather wait out short contention than fail.
func (l *DistributedLock) LockWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int) (func(), error) {
	backoff := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		release, err := l.Lock(ctx, key, ttl)
		if err == nil {
			return release, nil
		}
		lastErr = err

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("failed to acquire lock after %d retries: %w", maxRetries, lastErr)
}
