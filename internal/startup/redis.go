package startup

import (
	"context"
	"time"

	redisstorage "github.com/quickchat/internal/storage/redis"
)

// ConnectRedisWithRetry подключает лимитер попыток входа к Redis.
func ConnectRedisWithRetry(redisURL string, maxAttempts int, window, maxWait time.Duration, logPrefix string) *redisstorage.Client {
	var client *redisstorage.Client
	retry("redis connect", maxWait, 5*time.Second, logPrefix, func(ctx context.Context) error {
		c, err := redisstorage.New(ctx, redisURL, maxAttempts, window)
		if err != nil {
			return err
		}
		client = c
		return nil
	})
	return client
}
