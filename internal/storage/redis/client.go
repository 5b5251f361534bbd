package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "login_limit:"

type Client struct {
	cli    *redis.Client
	max    int64
	window time.Duration
}

// New подключается к Redis по URL; max попыток входа за window на email.
func New(ctx context.Context, url string, max int, window time.Duration) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli, max: int64(max), window: window}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Allow увеличивает login_limit:{email}; TTL окна ставится на первой попытке.
func (c *Client) Allow(ctx context.Context, email string) (bool, error) {
	key := keyPrefix + email
	n, err := c.cli.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 {
		if err := c.cli.Expire(ctx, key, c.window).Err(); err != nil {
			return false, fmt.Errorf("redis expire: %w", err)
		}
	}
	return n <= c.max, nil
}

func (c *Client) Reset(ctx context.Context, email string) error {
	return c.cli.Del(ctx, keyPrefix+email).Err()
}
