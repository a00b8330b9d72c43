package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/callboard/callboard/internal/auth"
	"github.com/callboard/callboard/internal/fault"
	"github.com/callboard/callboard/internal/workflow"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeFault maps a workflow fault to its HTTP status and stable error
// body. Errors without a fault kind are internal; their detail stays in
// the log.
func writeFault(w http.ResponseWriter, logger *slog.Logger, err error) {
	var fe *fault.Error
	if errors.As(err, &fe) {
		writeJSON(w, fault.HTTPStatus(err), fe)
		return
	}
	logger.Error("internal error", "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal", "message": "internal error"})
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(r.PathValue(name), 10, 64)
}

// actorFrom builds the workflow actor from the authenticated request.
func actorFrom(r *http.Request) workflow.Actor {
	ac, _ := auth.FromContext(r.Context())
	return workflow.Actor{ID: ac.UserID, ScopeID: ac.ScopeID, Role: ac.Role}
}
