package startup

import (
	"context"
	"os"
	"time"

	"github.com/quickchat/internal/logger"
)

const maxBackoff = 30 * time.Second

// retry повторяет connect с экспоненциальной паузой до maxWait, затем завершает процесс.
func retry(what string, maxWait, attemptTimeout time.Duration, logPrefix string, connect func(ctx context.Context) error) {
	deadline := time.Now().Add(maxWait)
	backoff := 2 * time.Second
	for {
		ctx, cancel := context.WithTimeout(context.Background(), attemptTimeout)
		err := connect(ctx)
		cancel()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			logger.Errorf("%s%s (gave up after %v): %v", logPrefix, what, maxWait, err)
			logger.Sync()
			os.Exit(1)
		}
		logger.Errorf("%s%s failed, retry in %v: %v", logPrefix, what, backoff, err)
		time.Sleep(backoff)
		if backoff < maxBackoff {
			backoff *= 2
		}
	}
}
