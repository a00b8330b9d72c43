package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/callboard/callboard/internal/auth"
	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/store"
)

type SettingsHandler struct {
	settings *store.SettingsStore
	logger   *slog.Logger
}

func NewSettingsHandler(ss *store.SettingsStore, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: ss, logger: logger}
}

// GetThresholds returns the scope's approval-policy knobs.
func (h *SettingsHandler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	thresholds, err := h.settings.GetThresholds(auth.ScopeID(r.Context()))
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, thresholds)
}

func (h *SettingsHandler) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var req model.Thresholds
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.AutoApproveLimitCents < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "auto_approve_limit_cents must not be negative"})
		return
	}
	if req.VoteQuorum < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "vote_quorum must be at least 1"})
		return
	}
	if req.MaxActiveDutiesPerUser < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_active_duties_per_user must be at least 1"})
		return
	}

	if err := h.settings.SetThresholds(auth.ScopeID(r.Context()), req); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}
