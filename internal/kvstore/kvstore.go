// Package kvstore wraps Redis for the two shared-state concerns of the bot:
// fixed-window rate limiting and short-lived caching of chat replies. Both
// survive restarts and are shared across replicas.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("key not found")

type Client struct {
	rdb    *redis.Client
	prefix string
}

func NewClient(addr, password string, db int, prefix string) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Client{rdb: rdb, prefix: prefix}, nil
}

func (c *Client) key(parts ...string) string {
	k := c.prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// Allow implements a fixed-window counter. The first hit in a window sets the
// expiry; subsequent hits only increment. It returns false once the count for
// the current window exceeds limit.
func (c *Client) Allow(ctx context.Context, bucket, id string, limit int, window time.Duration) (bool, error) {
	key := c.key("rl", bucket, id)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("incr rate key: %w", err)
	}
	if n == 1 {
		if err := c.rdb.Expire(ctx, key, window).Err(); err != nil {
			return false, fmt.Errorf("expire rate key: %w", err)
		}
	}
	return n <= int64(limit), nil
}

func (c *Client) Get(ctx context.Context, bucket, id string) (string, error) {
	val, err := c.rdb.Get(ctx, c.key("cache", bucket, id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get cache key: %w", err)
	}
	return val, nil
}

func (c *Client) Set(ctx context.Context, bucket, id, value string, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, c.key("cache", bucket, id), value, ttl).Err(); err != nil {
		return fmt.Errorf("set cache key: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
