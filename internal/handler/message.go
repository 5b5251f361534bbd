package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/quickchat/internal/middleware"
	"github.com/quickchat/internal/model"
	"github.com/quickchat/internal/service"
)

const sidebarLimit = 500

// Presence — часть ws.Hub, нужная REST-слою.
type Presence interface {
	OnlineUsers() []string
}

type MessageHandler struct {
	users    service.UserStore
	delivery *service.DeliveryService
	unseen   *service.UnseenReconciler
	presence Presence
}

func NewMessageHandler(users service.UserStore, delivery *service.DeliveryService, unseen *service.UnseenReconciler, presence Presence) *MessageHandler {
	return &MessageHandler{users: users, delivery: delivery, unseen: unseen, presence: presence}
}

// Sidebar: все пользователи кроме себя и непрочитанные по отправителю (только ненулевые).
func (h *MessageHandler) Sidebar(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	limit := queryInt(r, "limit", sidebarLimit)
	if limit <= 0 || limit > sidebarLimit {
		limit = sidebarLimit
	}
	list, err := h.users.ListExcept(r.Context(), userID, limit)
	if err != nil {
		writeServiceError(w, "message.Sidebar users", err)
		return
	}
	unseen, err := h.unseen.SidebarSnapshot(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "message.Sidebar unseen", err)
		return
	}
	users := make([]model.UserPublic, 0, len(list))
	for i := range list {
		users = append(users, list[i].ToPublic())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"users":          users,
		"unseenMessages": unseen,
	})
}

func (h *MessageHandler) History(w http.ResponseWriter, r *http.Request) {
	messages, err := h.delivery.History(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, "message.History", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "messages": messages})
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req service.SendPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	m, err := h.delivery.Send(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, "message.Send", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "newMessage": m})
}

func (h *MessageHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	if err := h.unseen.MarkSeen(r.Context(), middleware.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, "message.MarkSeen", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *MessageHandler) Online(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "onlineUsers": h.presence.OnlineUsers()})
}
