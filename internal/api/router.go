package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter mounts the application routes. metricsHandler may be nil when
// metrics are served on a separate listener.
func NewRouter(h *APIHandler, metricsHandler http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheckHandler)
	if metricsHandler != nil {
		r.Handle("/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/credit-card-applications", func(r chi.Router) {
			r.Post("/", h.SubmitApplicationHandler)
			r.Get("/pending", h.ListPendingHandler)
			r.Get("/customer/{email}", h.ListByEmailHandler)
			r.Get("/{applicationNumber}", h.GetApplicationHandler)
		})
		r.Get("/decision-stats", h.DecisionStatsHandler)
	})

	return r
}
