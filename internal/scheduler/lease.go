// README: Redis-backed sweep lease (SET NX PX).
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultLeaseKey = "dispatch:sweep:lease"

type RedisLease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLease holds the key for ttl after each successful Acquire. Pick a
// ttl slightly below the tick interval so the next tick is free to compete.
func NewRedisLease(client *redis.Client, key, owner string, ttl time.Duration) *RedisLease {
	if key == "" {
		key = DefaultLeaseKey
	}
	return &RedisLease{client: client, key: key, owner: owner, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	return ok, nil
}

// LeaseTTL derives a lease duration from the sweep interval.
func LeaseTTL(interval time.Duration) time.Duration {
	ttl := interval * 9 / 10
	if ttl < 100*time.Millisecond {
		ttl = 100 * time.Millisecond
	}
	return ttl
}
