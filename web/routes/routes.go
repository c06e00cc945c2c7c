// Package routes provides HTTP route registration for the API server.
package routes

import (
	"net/http"
	"time"

	"github.com/bygga/bygga/web/handlers"
	"github.com/bygga/bygga/web/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Options configures the router around the handlers
type Options struct {
	APIKey string
	// Limiter guards the public endpoints that touch secrets. Nil disables rate limiting.
	Limiter        middleware.RateLimiter
	RateLimit      int
	RateLimitEvery time.Duration
	// Metrics serves /metrics when set
	Metrics http.Handler
}

// NewRouter builds the complete API router
func NewRouter(h *handlers.Handlers, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.APIKey(opts.APIKey))

	RegisterUtilityRoutes(r, h, opts.Metrics)
	RegisterAPIRoutes(r, h, opts)
	return r
}

// RegisterUtilityRoutes registers /health and /metrics
func RegisterUtilityRoutes(r chi.Router, h *handlers.Handlers, metricsHandler http.Handler) {
	r.Get("/health", h.Health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
}

// RegisterAPIRoutes registers every /api endpoint
func RegisterAPIRoutes(r chi.Router, h *handlers.Handlers, opts Options) {
	limited := func(route string) func(http.Handler) http.Handler {
		return middleware.RateLimit(opts.Limiter, route, opts.RateLimit, opts.RateLimitEvery)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth", h.Auth)

		r.Route("/project", func(r chi.Router) {
			r.Get("/", h.ListProjects)
			r.Post("/", h.CreateProject)
			r.Get("/{id}", h.GetProject)
			r.Put("/{id}", h.UpdateProject)
			r.Delete("/{id}", h.DeleteProject)
		})

		r.Route("/workflow", func(r chi.Router) {
			r.Get("/", h.ListWorkflows)
			r.Post("/", h.CreateWorkflow)
			r.Get("/{id}", h.GetWorkflow)
			r.Put("/{id}", h.UpdateWorkflow)
			r.Delete("/{id}", h.DeleteWorkflow)
			r.Post("/{id}/verify", h.VerifyWorkflow)
		})

		r.Route("/secret", func(r chi.Router) {
			r.Get("/", h.ListSecrets)
			r.Post("/", h.CreateSecret)
			r.With(limited("secret_validate")).Post("/validate", h.ValidateSecret)
			r.Get("/{id}", h.GetSecret)
			r.Put("/{id}", h.UpdateSecret)
			r.Delete("/{id}", h.DeleteSecret)
		})

		r.Route("/task", func(r chi.Router) {
			r.Get("/", h.GetTask)
			r.With(limited("task_dispatch")).Post("/", h.CreateTask)
		})

		r.Route("/order", func(r chi.Router) {
			r.Post("/", h.CreateOrder)
			r.Get("/{id}", h.GetOrder)
		})

		r.Post("/payment/webhook", h.PaymentWebhook)
	})
}
