// Package api wires the HTTP surface: routing, middleware order and CORS.
package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/huddle-chat/huddle/internal/api/middleware"
	"github.com/huddle-chat/huddle/internal/chat"
	"github.com/huddle-chat/huddle/internal/handlers"
	"github.com/huddle-chat/huddle/internal/llm"
	"github.com/huddle-chat/huddle/internal/store"
)

// RouterConfig carries the dependencies the router hands to handlers.
type RouterConfig struct {
	DB          store.DataStore
	Redis       *store.RedisStore // optional in development
	Completions *llm.Service
	Orch        *chat.Orchestrator
	Whitelist   []string
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(32 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting needs Redis; without it the limiter is skipped.
	if cfg.Redis != nil {
		limiter := middleware.NewRateLimiter(cfg.Redis, logger, middleware.RateLimiterConfig{
			Whitelist: cfg.Whitelist,
		})
		r.Use(limiter.Middleware)
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.ChannelKeyHeader},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(cfg.DB, cfg.Redis, cfg.Completions, cfg.Orch, logger)
	auth := middleware.NewAuthMiddleware(cfg.DB)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/register", h.Register)
	r.Get("/channels", h.ListChannels)
	r.Get("/channels/{id}/messages", h.GetChannelMessages) // Private channels need key header
	r.Get("/assistants", h.ListAssistants)
	r.Get("/assistants/{id}", h.GetAssistant)

	// Authenticated routes (require bearer token)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)

		r.Post("/channel", h.CreateChannel)
		r.Post("/assistant", h.CreateAssistant)
		r.Post("/channels/{id}/messages", h.PostMessage)
		r.Post("/channels/{id}/stream", h.StreamReply)
	})

	return r
}
