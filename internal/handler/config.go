package handler

import (
	"net/http"

	"github.com/quickchat/internal/config"
)

// ConfigHandler отдаёт публичные параметры конфигурации клиенту.
type ConfigHandler struct {
	cfg *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{cfg: cfg}
}

// GetClientConfig — лимиты, которые клиент проверяет до отправки (без авторизации).
func (h *ConfigHandler) GetClientConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"max_image_bytes": h.cfg.MaxImageSize,
		"max_body_bytes":  h.cfg.MaxBodySize,
		"max_ws_per_user": h.cfg.MaxWSPerUser,
		"token_ttl_hours": int(h.cfg.TokenTTL.Hours()),
	})
}

func Status(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Server is Online"))
}
