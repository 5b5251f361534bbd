package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/quickchat/internal/logger"
	"github.com/quickchat/internal/model"
)

// Authenticator проверяет токен и возвращает публичный профиль (service.AuthService).
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.UserPublic, error)
}

// TokenFromRequest: Authorization: Bearer → cookie "token" → query "token" (браузерный WebSocket).
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// BearerAuth пропускает запрос только с валидным токеном существующего пользователя.
// Клиент всегда получает одинаковый 401; причина пишется только в лог.
func BearerAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			u, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				logger.Debugf("auth rejected %s %s token=%s: %v", r.Method, r.URL.Path, MaskToken(token), err)
				writeJSONError(w, http.StatusUnauthorized, "Not authorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}
