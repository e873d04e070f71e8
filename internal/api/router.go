package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/telescope-hq/telescope/internal/ingest"
	"github.com/telescope-hq/telescope/internal/sourcemap"
	"github.com/telescope-hq/telescope/internal/store"
	ws "github.com/telescope-hq/telescope/internal/websocket"
)

// RouterDeps bundles everything the HTTP surface needs.
type RouterDeps struct {
	Store       *store.PostgresStore
	Ingestor    *ingest.Ingestor
	RateLimiter *ingest.RateLimiter
	Resolver    *sourcemap.Resolver
	Hub         *ws.Hub
	ReportLimit int // max reports per DSN per minute; 0 disables
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS for browser SDKs and the dashboard
	r.Use(corsMiddleware)

	reportHandler := NewReportHandler(deps.Ingestor, deps.RateLimiter, deps.ReportLimit)
	errorHandler := NewErrorHandler(deps.Store, deps.Resolver)
	sourcemapHandler := NewSourceMapHandler(deps.Store)
	alertHandler := NewAlertHandler(deps.Store)
	metricsHandler := NewMetricsHandler(deps.Store)

	// Live feed for dashboards
	if deps.Hub != nil {
		r.Get("/ws", deps.Hub.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Post("/report", reportHandler.Report)

		r.Route("/errors", func(r chi.Router) {
			r.Get("/", errorHandler.List)
			r.Get("/{id}", errorHandler.Get)
			r.Patch("/{id}/status", errorHandler.UpdateStatus)
		})

		r.Post("/sourcemap", sourcemapHandler.Upload)
		r.Get("/sourcemaps", sourcemapHandler.List)

		r.Route("/alerts", func(r chi.Router) {
			r.Route("/rules", func(r chi.Router) {
				r.Post("/", alertHandler.CreateRule)
				r.Get("/", alertHandler.ListRules)
				r.Get("/{id}", alertHandler.GetRule)
				r.Patch("/{id}", alertHandler.UpdateRule)
				r.Delete("/{id}", alertHandler.DeleteRule)
			})
			r.Get("/history", alertHandler.History)
		})

		r.Get("/performance", errorHandler.ListPerformance)
		r.Get("/metrics", metricsHandler.Metrics)
	})

	return r
}

// corsMiddleware adds CORS headers so browser SDKs can report cross-origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
