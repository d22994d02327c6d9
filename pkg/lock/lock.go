// Package lock implements an expiring mutual exclusion lock in redis.  A
// holder that crashes without releasing loses the lock once its ttl elapses.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// releaseOwned deletes the lock only while it still holds the caller's value,
// so a holder whose ttl lapsed cannot release a lock taken over by another.
var releaseOwned = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker acquires and releases named locks.
type Locker interface {
	// Acquire sets the lock if it is free.  Losing the race returns false and
	// no error.
	Acquire(ctx context.Context, tag, key, value string, ttl time.Duration) (bool, error)
	// Release deletes the lock regardless of its holder.
	Release(ctx context.Context, tag, key string) error
	// ReleaseOwned deletes the lock only if it still holds value.
	ReleaseOwned(ctx context.Context, tag, key, value string) (bool, error)
}

type RedisLocker struct {
	r      rueidis.Client
	prefix string
}

func NewRedisLocker(r rueidis.Client, prefix string) *RedisLocker {
	return &RedisLocker{r: r, prefix: prefix}
}

// Key returns the redis key for the lock identified by tag and key.
func (l *RedisLocker) Key(tag, key string) string {
	return fmt.Sprintf("%s:lock:%s:%s", l.prefix, tag, key)
}

func (l *RedisLocker) Acquire(ctx context.Context, tag, key, value string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return false, fmt.Errorf("lock ttl must be positive")
	}
	cmd := l.r.B().Set().Key(l.Key(tag, key)).Value(value).Nx().Px(ttl).Build()
	err := l.r.Do(ctx, cmd).Error()
	if rueidis.IsRedisNil(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error acquiring lock %s: %w", l.Key(tag, key), err)
	}
	return true, nil
}

func (l *RedisLocker) Release(ctx context.Context, tag, key string) error {
	if err := l.r.Do(ctx, l.r.B().Del().Key(l.Key(tag, key)).Build()).Error(); err != nil {
		return fmt.Errorf("error releasing lock %s: %w", l.Key(tag, key), err)
	}
	return nil
}

func (l *RedisLocker) ReleaseOwned(ctx context.Context, tag, key, value string) (bool, error) {
	n, err := releaseOwned.Exec(ctx, l.r, []string{l.Key(tag, key)}, []string{value}).AsInt64()
	if err != nil {
		return false, fmt.Errorf("error releasing lock %s: %w", l.Key(tag, key), err)
	}
	return n == 1, nil
}
