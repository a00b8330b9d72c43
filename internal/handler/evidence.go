package handler

import (
	"log/slog"
	"net/http"

	"github.com/callboard/callboard/internal/auth"
	"github.com/callboard/callboard/internal/storage"
)

type EvidenceHandler struct {
	storage *storage.Service
	logger  *slog.Logger
}

func NewEvidenceHandler(svc *storage.Service, logger *slog.Logger) *EvidenceHandler {
	return &EvidenceHandler{storage: svc, logger: logger}
}

func (h *EvidenceHandler) disabled(w http.ResponseWriter) bool {
	if h.storage == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "evidence storage is not configured"})
		return true
	}
	return false
}

// Upload stores the request body as an evidence object. Clients upload
// before submitting a claim and pass the returned reference in the claim.
func (h *EvidenceHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ref, err := h.storage.Upload(r.Context(), auth.ScopeID(r.Context()), r.Body, r.ContentLength, contentType)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"reference": ref})
}

// Resolve exchanges a stored reference for a short-lived URL. References
// embed the owning scope, so cross-scope lookups are rejected.
func (h *EvidenceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if h.disabled(w) {
		return
	}
	ref := r.PathValue("ref")
	if !storage.OwnedByScope(ref, auth.ScopeID(r.Context())) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "evidence not found"})
		return
	}

	url, err := h.storage.Resolve(r.Context(), ref)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
