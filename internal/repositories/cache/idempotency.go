package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPending = "pending"

// Reservation is the state of an idempotency key after Reserve.
type Reservation struct {
	// Reserved is true when this caller now owns the key.
	Reserved bool
	// InFlight is true when another caller owns the key and has not
	// finished yet.
	InFlight bool
	// Result is the value stored by Complete, if any.
	Result string
}

// Reserve claims key for ttl. When the key already exists the stored
// state is returned instead.
func (c *Client) Reserve(ctx context.Context, scope, key string, ttl time.Duration) (Reservation, error) {
	k := c.key("idempotency", scope, key)

	set, err := c.rdb.SetNX(ctx, k, idempotencyPending, ttl).Result()
	if err != nil {
		return Reservation{}, err
	}
	if set {
		return Reservation{Reserved: true}, nil
	}

	val, err := c.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return c.Reserve(ctx, scope, key, ttl)
	}
	if err != nil {
		return Reservation{}, err
	}
	if val == idempotencyPending {
		return Reservation{InFlight: true}, nil
	}
	return Reservation{Result: val}, nil
}

// Complete stores the outcome for a reserved key.
func (c *Client) Complete(ctx context.Context, scope, key, result string, ttl time.Duration) error {
	return c.rdb.Set(ctx, c.key("idempotency", scope, key), result, ttl).Err()
}

// Release drops a reservation so the request can be retried.
func (c *Client) Release(ctx context.Context, scope, key string) error {
	return c.rdb.Del(ctx, c.key("idempotency", scope, key)).Err()
}
