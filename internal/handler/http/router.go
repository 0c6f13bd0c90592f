package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/searchsync/pkg/health"
	"github.com/utafrali/searchsync/pkg/middleware"
)

// NewRouter creates a chi router with all gateway routes registered.
func NewRouter(
	svc GatewayService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("searchsync"))

	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	gh := NewGatewayHandler(svc, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/probe", gh.Probe)

		r.Route("/indices/{index}", func(r chi.Router) {
			r.Use(ContentTypeJSON)

			r.Put("/mappings/{entityType}", gh.EnsureIndex)
			r.Post("/mappings/{entityType}/fields", gh.AddFields)
			r.Delete("/mappings/{entityType}", gh.DeleteMapping)

			r.Post("/documents/{entityType}", gh.UpsertDocuments)
			r.Delete("/documents/{entityType}", gh.DeleteDocuments)

			r.Post("/reindex/{entityType}", gh.Reindex)
		})
	})

	return r
}
