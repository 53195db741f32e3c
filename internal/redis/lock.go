package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker hands out expiring SETNX locks.
type Locker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewLocker creates a Locker whose keys start with prefix and expire after ttl.
func NewLocker(client *redis.Client, prefix string, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

// Lock is a held lock. Release it when the guarded work is done.
type Lock struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes the lock for key. It returns nil and no error when someone
// else holds it.
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	full := l.prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, full, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock %s: %w", full, err)
	}
	if !ok {
		return nil, nil
	}
	return &Lock{locker: l, key: full, token: token}, nil
}

// Release frees the lock if it has not expired and been taken by someone else.
func (lk *Lock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, lk.locker.client, []string{lk.key}, lk.token).Err(); err != nil {
		return fmt.Errorf("releasing lock %s: %w", lk.key, err)
	}
	return nil
}
