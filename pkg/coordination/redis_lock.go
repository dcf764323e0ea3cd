package coordination

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLock is the production LockBackend, backing master election with a
// single named key shared by every process.
type RedisLock struct {
	rdb *redis.Client
}

// NewRedisLock wraps an existing Redis client.
func NewRedisLock(rdb *redis.Client) *RedisLock {
	return &RedisLock{rdb: rdb}
}

func (l *RedisLock) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock acquire failed: %w", err)
	}
	return ok, nil
}

func (l *RedisLock) Value(ctx context.Context, key string) (string, bool, error) {
	v, err := l.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lock get failed: %w", err)
	}
	return v, true, nil
}

// refreshScript extends the TTL only if the key is still held by the caller,
// so a node that has already lost the lock can't resurrect it.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

func (l *RedisLock) Refresh(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	res, err := refreshScript.Run(ctx, l.rdb, []string{key}, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("lock refresh failed: %w", err)
	}
	return res == 1, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

func (l *RedisLock) Release(ctx context.Context, key, value string) error {
	if _, err := releaseScript.Run(ctx, l.rdb, []string{key}, value).Result(); err != nil {
		return fmt.Errorf("lock release failed: %w", err)
	}
	return nil
}
