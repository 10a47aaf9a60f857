package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockKey = "otp:sweep:leader"

// Locker grants at most one holder per interval
type Locker interface {
	TryAcquire(ctx context.Context, ttl time.Duration) (bool, error)
}

// RedisLock is a Locker backed by SET NX PX. The lock is never released
// early; it lapses when the ttl expires.
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
}

func NewRedisLock(client *redis.Client, key string) *RedisLock {
	if key == "" {
		key = defaultLockKey
	}
	return &RedisLock{client: client, key: key, owner: uuid.NewString()}
}

// TryAcquire reports whether this process now holds the lock
func (l *RedisLock) TryAcquire(ctx context.Context, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	return ok, nil
}
