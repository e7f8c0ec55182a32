package api

import (
	"chat-dm/contract"
	"chat-dm/services"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates and configures the HTTP router.
// ws serves the websocket endpoint, it authenticates on its own.
func NewRouter(
	log *slog.Logger,
	authService services.IAuthService,
	messageService services.IMessageService,
	authenticator contract.IAuthenticator,
	ws http.Handler,
	allowedOrigins []string,
) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(Metrics)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(log))
	r.Use(chimw.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := NewHandler(log, authService, messageService)
	r.NotFound(h.NotFound)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/health", h.Health)
	r.Get("/ws", ws.ServeHTTP)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(authenticator))
			r.Get("/me", h.Me)
			r.Get("/users", h.Users)
			r.Post("/logout", h.Logout)
		})
	})

	r.Route("/api/messages", func(r chi.Router) {
		r.Use(RequireAuth(authenticator))
		r.Post("/", h.SendMessage)
		r.Get("/{userId}", h.Conversation)
		r.Put("/{messageId}/read", h.MarkAsRead)
	})

	return r
}
