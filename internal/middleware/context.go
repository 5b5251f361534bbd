package middleware

import (
	"context"

	"github.com/quickchat/internal/model"
)

type contextKey string

const (
	UserIDKey contextKey = "user_id"
	UserKey   contextKey = "user"
)

// WithUser кладёт идентичность в контекст (BearerAuth, тесты).
func WithUser(ctx context.Context, u *model.UserPublic) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, u.ID)
	return context.WithValue(ctx, UserKey, u)
}

// GetUserID возвращает user_id из контекста (устанавливается BearerAuth).
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}

// GetUser возвращает публичный профиль авторизованного пользователя или nil.
func GetUser(ctx context.Context) *model.UserPublic {
	v, _ := ctx.Value(UserKey).(*model.UserPublic)
	return v
}
