package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/quickchat/internal/logger"
	"github.com/quickchat/internal/middleware"
	"github.com/quickchat/internal/service"
	"github.com/quickchat/internal/ws"
)

type WSHandler struct {
	hub              *ws.Hub
	auth             *service.AuthService
	allowedOrigins   []string
	allowQueryUserID bool
	upgrader         websocket.Upgrader
}

// NewWSHandler создаёт обработчик WebSocket. allowedOrigins — как в CORS ("*" — любой).
// allowQueryUserID разрешает ?userId= без токена (только для разработки).
func NewWSHandler(hub *ws.Hub, auth *service.AuthService, allowedOrigins []string, allowQueryUserID bool) *WSHandler {
	h := &WSHandler{hub: hub, auth: auth, allowedOrigins: allowedOrigins, allowQueryUserID: allowQueryUserID}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WSHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// identify: токен (header/cookie/query) → иначе ?userId= в режиме разработки.
func (h *WSHandler) identify(r *http.Request) (string, error) {
	if token := middleware.TokenFromRequest(r); token != "" {
		u, err := h.auth.Authenticate(r.Context(), token)
		if err != nil {
			return "", err
		}
		return u.ID, nil
	}
	if h.allowQueryUserID {
		if id := r.URL.Query().Get("userId"); id != "" {
			u, err := h.auth.Principal(r.Context(), id)
			if err != nil {
				return "", err
			}
			return u.ID, nil
		}
	}
	return "", service.ErrMissingCredential
}

func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID, err := h.identify(r)
	if err != nil {
		if !errors.Is(err, service.ErrMissingCredential) {
			logger.Debugf("ws auth rejected: %v", err)
		}
		writeServiceError(w, "ws.identify", err)
		return
	}
	if !h.checkOrigin(r) {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade user=%s: %v", userID, err)
		return
	}

	// Соединение живёт дольше запроса; его останавливает Close или остановка hub.
	ctx, cancel := context.WithCancel(context.Background())
	client := ws.NewClient(h.hub, conn, userID)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
