package locker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock already held")

// Lease is a held lock. Release is safe to call after the TTL elapsed;
// it only deletes the key if this lease still owns it.
type Lease interface {
	Release(ctx context.Context) error
}

type RedisLocker struct {
	rdb       *redis.Client
	keyPrefix string
}

func NewRedisLocker(rdb *redis.Client, keyPrefix string) *RedisLocker {
	return &RedisLocker{rdb: rdb, keyPrefix: keyPrefix}
}

// Acquire takes a non-blocking exclusive lock on key for ttl. Returns
// ErrLockHeld if another holder is active.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	prefixedKey := l.keyPrefix + "lock:" + key
	value := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, prefixedKey, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	return &redisLease{rdb: l.rdb, key: prefixedKey, value: value}, nil
}

type redisLease struct {
	rdb   *redis.Client
	key   string
	value string
}

// Owner-checked delete so an expired lease cannot release a lock that
// has since been re-acquired by someone else.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (l *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.value).Err()
}
