package http

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/avolpi/heron/config"
	"github.com/avolpi/heron/internal/pkg/metrics"
)

func NewRouter(handlers *Handlers, logger *slog.Logger, cfg *config.Config, metricsRegistry metrics.Registry) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(logger))
	r.Use(metrics.PrometheusMiddleware(metricsRegistry))
	r.Use(middleware.Recoverer)

	r.Get("/health", handlers.HandleHealth)
	r.Get("/ready", handlers.HandleReady)

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, metricsRegistry.GetHandler())
	}

	r.Post("/shorten", handlers.HandleShorten)

	r.Route("/api", func(api chi.Router) {
		api.Route("/urls", func(urls chi.Router) {
			urls.Get("/", handlers.HandleListURLs)
			urls.Get("/top", handlers.HandleTopURLs)
			urls.Get("/{id}", handlers.HandleGetURL)
			urls.Put("/{id}", handlers.HandleUpdateURL)
			urls.Patch("/{id}", handlers.HandleUpdateURL)
			urls.Delete("/{id}", handlers.HandleDeleteURL)
		})
		api.Post("/maintenance/deactivate-expired", handlers.HandleDeactivateExpired)
		api.Delete("/cache/{shortCode}", handlers.HandlePurge)
	})

	r.Get("/{shortCode}", handlers.HandleRedirect)
	r.Head("/{shortCode}", handlers.HandleRedirect)

	return r
}
