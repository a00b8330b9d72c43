package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/callboard/callboard/internal/auth"
	"github.com/callboard/callboard/internal/fault"
	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/store"
)

type MemberHandler struct {
	members *store.MemberStore
	logger  *slog.Logger
}

func NewMemberHandler(ms *store.MemberStore, logger *slog.Logger) *MemberHandler {
	return &MemberHandler{members: ms, logger: logger}
}

type memberRequest struct {
	Name string `json:"name"`
	Role string `json:"role"`
	PIN  string `json:"pin"`
}

func validRole(role string) bool {
	return role == model.RoleMember || role == model.RoleAdministrator
}

func (h *MemberHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if req.Role == "" {
		req.Role = model.RoleMember
	}
	if !validRole(req.Role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be member or administrator"})
		return
	}
	if len(req.PIN) < 4 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pin must be at least 4 characters"})
		return
	}

	scopeID := auth.ScopeID(r.Context())
	existing, err := h.members.GetByName(scopeID, req.Name)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if existing != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "a member with that name already exists"})
		return
	}

	member, err := h.members.Create(scopeID, req.Name, req.Role)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	hash, err := HashPIN(req.PIN)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if err := h.members.SetPIN(member.ID, hash); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (h *MemberHandler) List(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.List(auth.ScopeID(r.Context()))
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if members == nil {
		members = []model.Member{}
	}
	writeJSON(w, http.StatusOK, members)
}

// getScoped loads a member in the caller's scope.
func (h *MemberHandler) getScoped(r *http.Request, id int64) (*model.Member, error) {
	member, err := h.members.GetByID(id)
	if err != nil {
		return nil, err
	}
	if member == nil || member.ScopeID != auth.ScopeID(r.Context()) {
		return nil, fault.Newf(fault.NotFound, "member %d not found", id)
	}
	return member, nil
}

func (h *MemberHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	member, err := h.getScoped(r, id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		req.Name = member.Name
	}
	if req.Role == "" {
		req.Role = member.Role
	}
	if !validRole(req.Role) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "role must be member or administrator"})
		return
	}

	updated, err := h.members.Update(id, req.Name, req.Role)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *MemberHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if _, err := h.getScoped(r, id); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if id == auth.UserID(r.Context()) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot delete yourself"})
		return
	}
	if err := h.members.Delete(id); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pinRequest struct {
	PIN string `json:"pin"`
}

// SetPIN changes a member's PIN. Members change their own; administrators
// change anyone's in their scope.
func (h *MemberHandler) SetPIN(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if _, err := h.getScoped(r, id); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if id != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context()) {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "cannot change another member's pin"})
		return
	}

	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.PIN) < 4 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pin must be at least 4 characters"})
		return
	}

	hash, err := HashPIN(req.PIN)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if err := h.members.SetPIN(id, hash); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
