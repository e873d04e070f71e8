package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/telescope-hq/telescope/internal/domain"
	"github.com/telescope-hq/telescope/internal/store"
)

type AlertHandler struct {
	store *store.PostgresStore
}

func NewAlertHandler(s *store.PostgresStore) *AlertHandler {
	return &AlertHandler{store: s}
}

func (h *AlertHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.DSN == "" {
		respondError(w, http.StatusBadRequest, "dsn is required")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !domain.ValidRuleType(req.Type) {
		respondError(w, http.StatusBadRequest, "type must be one of new_error, error_threshold, error_spike")
		return
	}
	if req.Type != domain.RuleNewError && req.Threshold <= 0 {
		respondError(w, http.StatusBadRequest, "threshold must be positive")
		return
	}
	if len(req.Recipients) == 0 {
		respondError(w, http.StatusBadRequest, "at least one recipient is required")
		return
	}
	if req.CooldownMinutes < 0 {
		respondError(w, http.StatusBadRequest, "cooldown_minutes must not be negative")
		return
	}

	cooldown := req.CooldownMinutes
	if cooldown == 0 {
		cooldown = 30
	}

	rule := &domain.AlertRule{
		ID:              uuid.NewString(),
		DSN:             req.DSN,
		Name:            req.Name,
		Type:            req.Type,
		Threshold:       req.Threshold,
		TimeWindowMin:   req.TimeWindowMin,
		Recipients:      req.Recipients,
		CooldownMinutes: cooldown,
		Enabled:         true,
	}

	rule, err := h.store.CreateAlertRule(r.Context(), rule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create alert rule")
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

func (h *AlertHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := h.store.ListAlertRules(r.Context(), r.URL.Query().Get("dsn"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list alert rules")
		return
	}
	respondJSON(w, http.StatusOK, rules)
}

func (h *AlertHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := h.store.GetAlertRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get alert rule")
		return
	}
	if rule == nil {
		respondError(w, http.StatusNotFound, "alert rule not found")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (h *AlertHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Threshold != nil && *req.Threshold <= 0 {
		respondError(w, http.StatusBadRequest, "threshold must be positive")
		return
	}
	if req.CooldownMinutes != nil && *req.CooldownMinutes < 0 {
		respondError(w, http.StatusBadRequest, "cooldown_minutes must not be negative")
		return
	}

	rule, err := h.store.UpdateAlertRule(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update alert rule")
		return
	}
	if rule == nil {
		respondError(w, http.StatusNotFound, "alert rule not found")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

func (h *AlertHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteAlertRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete alert rule")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "alert rule not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AlertHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.store.ListAlertHistory(r.Context(),
		r.URL.Query().Get("dsn"), queryLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list alert history")
		return
	}
	respondJSON(w, http.StatusOK, history)
}
