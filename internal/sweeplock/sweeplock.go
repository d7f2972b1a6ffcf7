// Package sweeplock provides a Redis-backed single-holder lease so that at
// most one accrual sweep runs across all instances at a time.
package sweeplock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is the lease boundary the sweep depends on.
type Locker interface {
	// Acquire tries to take the lease. ok is false when another holder has it.
	Acquire(ctx context.Context) (ok bool, err error)
	// Release frees the lease if this instance still holds it.
	Release(ctx context.Context) error
}

// RedisLock implements Locker with SET NX on a single key. The TTL bounds how
// long a crashed holder blocks the next sweep.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  uuid.NewString(),
	}
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
}

// Release deletes the key only when this instance's token is still stored,
// so an expired lease taken over by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}

// NoopLock always grants the lease. Used in single-instance deployments and
// tests that do not run Redis.
type NoopLock struct{}

func (NoopLock) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (NoopLock) Release(ctx context.Context) error         { return nil }
