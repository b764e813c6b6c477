package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the full HTTP surface. healthCheck probes downstream
// dependencies; nil means the process being up is health enough. registry
// is the collector registry exposed on /metrics; nil falls back to the
// default registry.
func NewRouter(h *Handlers, healthCheck func(ctx context.Context) error, registry *prometheus.Registry, timeout time.Duration) chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		health := map[string]interface{}{"status": "ok"}
		status := http.StatusOK
		if healthCheck != nil {
			if err := healthCheck(r.Context()); err != nil {
				health["status"] = "error"
				health["message"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(health)
	})

	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API Routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/platforms", h.Platforms)
		r.Get("/{platform}/search", h.Search)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", h.CreateJob)
			r.Get("/", h.ListJobs)
			r.Get("/{jobID}", h.GetJob)
			r.Get("/{jobID}/products", h.GetJobProducts)
			r.Delete("/{jobID}", h.CancelJob)
		})

		r.Get("/stats", h.GetStats)
	})

	return r
}
