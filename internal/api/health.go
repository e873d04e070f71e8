package api

import (
	"net/http"

	"github.com/telescope-hq/telescope/internal/store"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// HealthHandler returns the health check handler.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, HealthResponse{
			Status:  "healthy",
			Version: "1.0.0",
		})
	}
}

type MetricsHandler struct {
	store *store.PostgresStore
}

func NewMetricsHandler(s *store.PostgresStore) *MetricsHandler {
	return &MetricsHandler{store: s}
}

func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.store.GetIngestMetrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get metrics")
		return
	}
	respondJSON(w, http.StatusOK, m)
}
