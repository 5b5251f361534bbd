package storage

import "context"

// LoginLimiter — счётчик попыток входа по email в скользящем окне.
// Реализации: redis.Client, memory.Client (для -dev без Redis).
type LoginLimiter interface {
	// Allow регистрирует попытку и сообщает, укладывается ли она в лимит.
	Allow(ctx context.Context, email string) (bool, error)
	// Reset очищает счётчик после успешного входа.
	Reset(ctx context.Context, email string) error
	Close() error
}
