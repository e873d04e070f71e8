package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/telescope-hq/telescope/internal/domain"
	"github.com/telescope-hq/telescope/internal/sourcemap"
	"github.com/telescope-hq/telescope/internal/store"
)

type ErrorHandler struct {
	store    *store.PostgresStore
	resolver *sourcemap.Resolver
}

func NewErrorHandler(s *store.PostgresStore, r *sourcemap.Resolver) *ErrorHandler {
	return &ErrorHandler{store: s, resolver: r}
}

func (h *ErrorHandler) List(w http.ResponseWriter, r *http.Request) {
	dsn := r.URL.Query().Get("dsn")
	status := r.URL.Query().Get("status")
	limit := queryLimit(r, 50)

	if status != "" && !domain.ValidStatus(status) {
		respondError(w, http.StatusBadRequest, "invalid status filter")
		return
	}

	groups, err := h.store.ListErrorGroups(r.Context(), dsn, status, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list errors")
		return
	}

	respondJSON(w, http.StatusOK, groups)
}

type errorDetailResponse struct {
	domain.ErrorGroup
	ParsedStack []domain.ResolvedFrame `json:"parsedStack,omitempty"`
}

// Get returns a stored error group; when the group carries a stack and a
// matching sourcemap artifact exists, the response includes a parsedStack
// of resolved frames. ?version= selects the release to resolve against.
func (h *ErrorHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	group, err := h.store.GetErrorGroup(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get error")
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "error not found")
		return
	}

	resp := errorDetailResponse{ErrorGroup: *group}

	if h.resolver != nil && len(group.SampleFrames) > 0 {
		version := r.URL.Query().Get("version")
		if version == "" {
			version = group.Release
		}
		resp.ParsedStack = h.resolver.Resolve(r.Context(), group.SampleFrames, group.DSN, version)
	}

	respondJSON(w, http.StatusOK, resp)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// UpdateStatus mutates only the group status; ingestion never touches it.
func (h *ErrorHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !domain.ValidStatus(req.Status) {
		respondError(w, http.StatusBadRequest, "status must be one of open, processing, resolved, ignored")
		return
	}

	group, err := h.store.UpdateErrorGroupStatus(r.Context(), id, req.Status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update status")
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "error not found")
		return
	}

	respondJSON(w, http.StatusOK, group)
}

func (h *ErrorHandler) ListPerformance(w http.ResponseWriter, r *http.Request) {
	dsn := r.URL.Query().Get("dsn")
	if dsn == "" {
		respondError(w, http.StatusBadRequest, "dsn is required")
		return
	}

	records, err := h.store.ListPerformance(r.Context(), dsn, queryLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list performance events")
		return
	}

	respondJSON(w, http.StatusOK, records)
}

func queryLimit(r *http.Request, fallback int) int {
	limit := fallback
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	return limit
}
