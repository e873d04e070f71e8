package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/telescope-hq/telescope/internal/domain"
	"github.com/telescope-hq/telescope/internal/store"
)

// maxSourceMapSize bounds one uploaded artifact.
const maxSourceMapSize = 32 << 20

type SourceMapHandler struct {
	store *store.PostgresStore
}

func NewSourceMapHandler(s *store.PostgresStore) *SourceMapHandler {
	return &SourceMapHandler{store: s}
}

// Upload accepts a multipart form (dsn, version, file) and stores the
// artifact. Non-JSON content is rejected: a source map is a JSON document
// with a "mappings" field.
func (h *SourceMapHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxSourceMapSize); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	dsn := r.FormValue("dsn")
	version := r.FormValue("version")
	if dsn == "" {
		respondError(w, http.StatusBadRequest, "dsn is required")
		return
	}
	if version == "" {
		respondError(w, http.StatusBadRequest, "version is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxSourceMapSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read file")
		return
	}

	var probe struct {
		Version  int    `json:"version"`
		Mappings string `json:"mappings"`
	}
	if err := json.Unmarshal(content, &probe); err != nil || probe.Mappings == "" {
		respondError(w, http.StatusBadRequest, "file is not a source map")
		return
	}

	artifact := &domain.SourceMapArtifact{
		ID:        uuid.NewString(),
		DSN:       dsn,
		Version:   version,
		Filename:  header.Filename,
		Content:   content,
		SizeBytes: len(content),
	}
	if err := h.store.InsertSourceMap(r.Context(), artifact); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store source map")
		return
	}

	respondJSON(w, http.StatusCreated, artifact)
}

func (h *SourceMapHandler) List(w http.ResponseWriter, r *http.Request) {
	dsn := r.URL.Query().Get("dsn")
	if dsn == "" {
		respondError(w, http.StatusBadRequest, "dsn is required")
		return
	}

	artifacts, err := h.store.ListSourceMaps(r.Context(), dsn)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list source maps")
		return
	}

	respondJSON(w, http.StatusOK, artifacts)
}
