package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/callboard/callboard/internal/auth"
	"github.com/callboard/callboard/internal/middleware"
	"github.com/callboard/callboard/internal/store"
)

type AuthHandler struct {
	members  *store.MemberStore
	sessions *store.SessionStore
	logger   *slog.Logger
}

func NewAuthHandler(ms *store.MemberStore, ss *store.SessionStore, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{members: ms, sessions: ss, logger: logger}
}

type loginRequest struct {
	ScopeID int64  `json:"scope_id"`
	Name    string `json:"name"`
	PIN     string `json:"pin"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.ScopeID == 0 {
		req.ScopeID = 1
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PIN == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and pin are required"})
		return
	}

	member, err := h.members.GetByName(req.ScopeID, req.Name)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if member == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	hash, err := h.members.GetPINHash(member.ID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(req.PIN)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	sess, err := h.sessions.Create(member.ID, member.ScopeID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  sess.ExpiresAt,
	})
	h.logger.Info("member logged in", "member_id", member.ID, "scope_id", member.ScopeID)
	writeJSON(w, http.StatusOK, member)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if ac, ok := auth.FromContext(r.Context()); ok {
		if err := h.sessions.Delete(ac.SessionID); err != nil {
			h.logger.Error("delete session", "session_id", ac.SessionID, "error", err)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the authenticated member, the identity collaborator's
// currentUser equivalent.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	member, err := h.members.GetByID(auth.UserID(r.Context()))
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if member == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid session"})
		return
	}
	writeJSON(w, http.StatusOK, member)
}

// CleanupSessions removes expired sessions; run periodically from main.
func (h *AuthHandler) CleanupSessions() {
	count, err := h.sessions.DeleteExpired()
	if err != nil {
		h.logger.Error("cleanup sessions", "error", err)
		return
	}
	if count > 0 {
		h.logger.Info("expired sessions removed", "count", count)
	}
}

// HashPIN derives the bcrypt hash stored for a member's PIN.
func HashPIN(pin string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
