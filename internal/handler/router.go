package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quickchat/internal/config"
	"github.com/quickchat/internal/media"
	"github.com/quickchat/internal/middleware"
	"github.com/quickchat/internal/service"
	"github.com/quickchat/internal/ws"
)

// Deps — всё, что нужно HTTP-слою.
type Deps struct {
	Cfg      *config.Config
	Auth     *service.AuthService
	Users    service.UserStore
	Delivery *service.DeliveryService
	Unseen   *service.UnseenReconciler
	Hub      *ws.Hub
	Media    *media.Store
}

func NewRouter(d Deps) http.Handler {
	authH := NewAuthHandler(d.Auth, d.Cfg.Production)
	msgH := NewMessageHandler(d.Users, d.Delivery, d.Unseen, d.Hub)
	fileH := NewFileHandler(d.Media)
	wsH := NewWSHandler(d.Hub, d.Auth, d.Cfg.AllowedOrigins(), d.Cfg.AllowQueryUserID)
	configH := NewConfigHandler(d.Cfg)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	compress := chimw.Compress(5)
	r.Use(func(next http.Handler) http.Handler {
		compressed := compress(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.Metrics)
	r.Use(middleware.SecureHeaders)
	r.Use(chimw.RequestSize(d.Cfg.MaxBodySize))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.With(middleware.InternalOnly(d.Cfg.MetricsSecret)).Handle("/metrics", promhttp.Handler())
	r.Get("/ws", wsH.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimitAPI)
		r.Get("/status", Status)
		r.Get("/config", configH.GetClientConfig)
		r.Get("/files/{filename}", fileH.Serve)

		r.Post("/auth/signup", authH.Signup)
		r.Post("/auth/login", authH.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.BearerAuth(d.Auth))
			r.Use(middleware.RateLimitUser)
			r.Get("/auth/check", authH.Check)
			r.Put("/auth/update-profile", authH.UpdateProfile)

			r.Get("/messages/users", msgH.Sidebar)
			r.Get("/messages/online", msgH.Online)
			r.Get("/messages/{id}", msgH.History)
			r.Post("/messages/send/{id}", msgH.Send)
			r.Put("/messages/mark/{id}", msgH.MarkSeen)
		})
	})
	return r
}
