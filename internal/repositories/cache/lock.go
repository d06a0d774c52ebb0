package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrLockHeld = errors.New("lock already held")

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Lock is a single-owner lease on a key.
type Lock struct {
	client *Client
	key    string
	value  string
}

func (c *Client) AcquireLock(ctx context.Context, name string, ttl time.Duration) (*Lock, error) {
	key := c.key("lock", name)
	value := uuid.NewString()

	ok, err := c.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return &Lock{client: c, key: key, value: value}, nil
}

// Release deletes the lock only if this owner still holds it.
func (l *Lock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.client.rdb, []string{l.key}, l.value).Err()
}
