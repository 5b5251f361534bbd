package memory

import (
	"context"
	"sync"
	"time"
)

type Client struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	now    func() time.Time
	hits   map[string][]time.Time
}

func New(max int, window time.Duration) *Client {
	return &Client{max: max, window: window, now: time.Now, hits: make(map[string][]time.Time)}
}

func (c *Client) Close() error { return nil }

func (c *Client) Allow(ctx context.Context, email string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	cut := now.Add(-c.window)
	kept := c.hits[email][:0]
	for _, t := range c.hits[email] {
		if t.After(cut) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= c.max {
		c.hits[email] = kept
		return false, nil
	}
	c.hits[email] = append(kept, now)
	return true, nil
}

func (c *Client) Reset(ctx context.Context, email string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hits, email)
	return nil
}
