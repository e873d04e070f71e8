package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/telescope-hq/telescope/internal/domain"
	"github.com/telescope-hq/telescope/internal/ingest"
)

// maxReportBody bounds one report POST; SDK batches are size-trimmed
// client-side so anything bigger is hostile or broken.
const maxReportBody = 4 << 20

type ReportHandler struct {
	ingestor    *ingest.Ingestor
	rateLimiter *ingest.RateLimiter
	limit       int
}

func NewReportHandler(in *ingest.Ingestor, rl *ingest.RateLimiter, limit int) *ReportHandler {
	return &ReportHandler{ingestor: in, rateLimiter: rl, limit: limit}
}

// Report is the ingestion endpoint: POST /report with {dsn, events}.
func (h *ReportHandler) Report(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxReportBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	// events must be present and an array; decode dsn first so the error
	// messages stay precise.
	var probe struct {
		DSN    string          `json:"dsn"`
		Events json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if probe.DSN == "" {
		respondError(w, http.StatusBadRequest, "dsn is required")
		return
	}
	if len(probe.Events) == 0 || !bytes.HasPrefix(bytes.TrimSpace(probe.Events), []byte("[")) {
		respondError(w, http.StatusBadRequest, "events must be an array")
		return
	}

	if h.rateLimiter != nil && !h.rateLimiter.Allow(r.Context(), probe.DSN, h.limit) {
		respondError(w, http.StatusTooManyRequests, "report rate limit exceeded")
		return
	}

	var req domain.ReportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid events payload")
		return
	}

	res := h.ingestor.ProcessReport(r.Context(), &req)

	respondJSON(w, http.StatusOK, domain.ReportResponse{
		Success:     true,
		Count:       res.Count,
		Errors:      res.Errors,
		Performance: res.Performance,
	})
}
