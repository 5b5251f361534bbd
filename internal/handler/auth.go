package handler

import (
	"net/http"

	"github.com/quickchat/internal/middleware"
	"github.com/quickchat/internal/model"
	"github.com/quickchat/internal/service"
)

type AuthHandler struct {
	auth         *service.AuthService
	secureCookie bool
}

// NewAuthHandler: secureCookie выставляет флаг Secure у cookie token (production за HTTPS).
func NewAuthHandler(auth *service.AuthService, secureCookie bool) *AuthHandler {
	return &AuthHandler{auth: auth, secureCookie: secureCookie}
}

type authResponse struct {
	Success  bool             `json:"success"`
	Token    string           `json:"token"`
	UserData model.UserPublic `json:"userData"`
	Message  string           `json:"message"`
}

type userResponse struct {
	Success bool              `json:"success"`
	User    *model.UserPublic `json:"user"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.auth.Signup(r.Context(), req)
	if err != nil {
		writeServiceError(w, "auth.Signup", err)
		return
	}
	h.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusCreated, authResponse{Success: true, Token: res.Token, UserData: res.User, Message: "Account created successfully"})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.auth.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, "auth.Login", err)
		return
	}
	h.setTokenCookie(w, res.Token)
	writeJSON(w, http.StatusOK, authResponse{Success: true, Token: res.Token, UserData: res.User, Message: "Login successful"})
}

// Check возвращает профиль владельца токена (маршрут за BearerAuth).
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: middleware.GetUser(r.Context())})
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req service.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.auth.UpdateProfile(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		writeServiceError(w, "auth.UpdateProfile", err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{Success: true, User: u})
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}
