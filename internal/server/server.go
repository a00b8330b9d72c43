package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/callboard/callboard/internal/handler"
	"github.com/callboard/callboard/internal/middleware"
	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/notify"
	"github.com/callboard/callboard/internal/storage"
	"github.com/callboard/callboard/internal/store"
	"github.com/callboard/callboard/internal/transition"
	ws "github.com/callboard/callboard/internal/websocket"
	"github.com/callboard/callboard/internal/workflow"
)

// Config carries the external-collaborator settings the server wires in.
type Config struct {
	Storage         storage.Config
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

type Server struct {
	db           *sql.DB
	hub          *ws.Hub
	authH        *handler.AuthHandler
	dutyH        *handler.DutyHandler
	claimH       *handler.ClaimHandler
	memberH      *handler.MemberHandler
	settingsH    *handler.SettingsHandler
	evidenceH    *handler.EvidenceHandler
	pushH        *handler.PushHandler
	sessionStore *store.SessionStore
	memberStore  *store.MemberStore
	dispatcher   *notify.Dispatcher
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger
}

// hubBroadcaster adapts the WebSocket hub to the workflow's broadcaster
// contract.
type hubBroadcaster struct {
	hub *ws.Hub
}

func (b hubBroadcaster) Broadcast(scopeID int64, entity, action string, id int64) {
	b.hub.Broadcast(ws.NewMessage(scopeID, entity, action, id, nil))
}

// hubEvents publishes every committed duty status change, so board clients
// re-fetch no matter which operation caused the transition.
type hubEvents struct {
	hub *ws.Hub
}

func (e hubEvents) DutyStatusChanged(duty *model.Duty, from model.DutyStatus) {
	e.hub.Broadcast(ws.NewMessage(duty.ScopeID, "duty", "updated", duty.ID, map[string]any{
		"from":   string(from),
		"status": string(duty.Status),
	}))
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	memberStore := store.NewMemberStore(db)
	dutyStore := store.NewDutyStore(db)
	assignmentStore := store.NewAssignmentStore(db)
	receiptStore := store.NewReceiptStore(db)
	voteStore := store.NewVoteStore(db)
	settingsStore := store.NewSettingsStore(db)
	sessionStore := store.NewSessionStore(db)
	pushStore := store.NewPushStore(db)

	pushSvc := notify.NewService(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey)
	var dispatcher *notify.Dispatcher
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		dispatcher = notify.NewDispatcher(pushSvc, pushStore, logger)
	}

	authority := transition.NewAuthority(dutyStore, assignmentStore, receiptStore, voteStore, settingsStore, hubEvents{hub}, logger.With("component", "transition"))

	wfCfg := workflow.Config{
		Duties:      dutyStore,
		Assignments: assignmentStore,
		Receipts:    receiptStore,
		Votes:       voteStore,
		Settings:    settingsStore,
		Members:     memberStore,
		Authority:   authority,
		Broadcaster: hubBroadcaster{hub},
		Logger:      logger.With("component", "workflow"),
	}
	if dispatcher != nil {
		wfCfg.Notifier = dispatcher
	}
	wf := workflow.New(wfCfg)

	evidenceSvc := storage.New(cfg.Storage)
	if evidenceSvc == nil {
		logger.Warn("evidence storage not configured; uploads disabled")
	}

	var pushH *handler.PushHandler
	if dispatcher != nil {
		pushH = handler.NewPushHandler(pushSvc, pushStore, logger.With("component", "push"))
	}

	return &Server{
		db:           db,
		hub:          hub,
		authH:        handler.NewAuthHandler(memberStore, sessionStore, logger.With("component", "auth")),
		dutyH:        handler.NewDutyHandler(wf, dutyStore, assignmentStore, receiptStore, logger.With("component", "duty")),
		claimH:       handler.NewClaimHandler(wf, receiptStore, dutyStore, logger.With("component", "claim")),
		memberH:      handler.NewMemberHandler(memberStore, logger.With("component", "member")),
		settingsH:    handler.NewSettingsHandler(settingsStore, logger.With("component", "settings")),
		evidenceH:    handler.NewEvidenceHandler(evidenceSvc, logger.With("component", "evidence")),
		pushH:        pushH,
		sessionStore: sessionStore,
		memberStore:  memberStore,
		dispatcher:   dispatcher,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// MemberStore returns the member store for bootstrap tasks.
func (s *Server) MemberStore() *store.MemberStore {
	return s.memberStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Dispatcher returns the push dispatcher, nil when VAPID keys are absent.
func (s *Server) Dispatcher() *notify.Dispatcher {
	return s.dispatcher
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes
	outerMux.HandleFunc("POST /api/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Everything else requires a session
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.memberStore)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	keyFunc := func(r *http.Request) string {
		return middleware.RealIP(r)
	}
	rl := middleware.RateLimit(s.rateLimiter, keyFunc, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/logout", s.authH.Logout)
	mux.HandleFunc("GET /api/me", s.authH.Me)

	// Duties
	mux.HandleFunc("POST /api/duties", s.dutyH.Create)
	mux.HandleFunc("GET /api/duties", s.dutyH.List)
	mux.HandleFunc("GET /api/board", s.dutyH.Board)
	mux.HandleFunc("GET /api/duties/{id}", s.dutyH.Get)
	mux.HandleFunc("PUT /api/duties/{id}", onlyAdmin(s.dutyH.Update))
	mux.HandleFunc("DELETE /api/duties/{id}", s.dutyH.Delete)
	mux.HandleFunc("POST /api/duties/{id}/transition", s.dutyH.Transition)
	mux.HandleFunc("POST /api/duties/{id}/force", onlyAdmin(s.dutyH.Force))
	mux.HandleFunc("POST /api/duties/{id}/complete", s.dutyH.Complete)
	mux.HandleFunc("GET /api/duties/{id}/audit", s.dutyH.Audit)

	// Assignments
	mux.HandleFunc("POST /api/duties/{id}/assignments", s.dutyH.Assign)
	mux.HandleFunc("DELETE /api/duties/{id}/assignments/{userID}", s.dutyH.Unassign)
	mux.HandleFunc("POST /api/duties/{id}/respond", s.dutyH.Respond)

	// Claims
	mux.HandleFunc("POST /api/duties/{id}/claims", s.claimH.Submit)
	mux.HandleFunc("GET /api/duties/{id}/claims", s.claimH.ListByDuty)
	mux.HandleFunc("GET /api/claims/{id}", s.claimH.Get)
	mux.HandleFunc("POST /api/claims/{id}/vote", s.claimH.Vote)
	mux.HandleFunc("POST /api/claims/{id}/decision", s.claimH.Decide)
	mux.HandleFunc("POST /api/claims/{id}/override", s.claimH.Override)

	// Members
	mux.HandleFunc("GET /api/members", s.memberH.List)
	mux.HandleFunc("POST /api/members", onlyAdmin(s.memberH.Create))
	mux.HandleFunc("PUT /api/members/{id}", onlyAdmin(s.memberH.Update))
	mux.HandleFunc("DELETE /api/members/{id}", onlyAdmin(s.memberH.Delete))
	mux.HandleFunc("POST /api/members/{id}/pin", s.memberH.SetPIN)

	// Settings
	mux.HandleFunc("GET /api/settings/thresholds", s.settingsH.GetThresholds)
	mux.HandleFunc("PUT /api/settings/thresholds", onlyAdmin(s.settingsH.UpdateThresholds))

	// Evidence
	mux.HandleFunc("POST /api/evidence", s.evidenceH.Upload)
	mux.HandleFunc("GET /api/evidence/{ref...}", s.evidenceH.Resolve)

	// Push notifications
	if s.pushH != nil {
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.VAPIDKey)
		mux.HandleFunc("POST /api/push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("POST /api/push/unsubscribe", s.pushH.Unsubscribe)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}

// onlyAdmin wraps a handler with the admin role check.
func onlyAdmin(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.RequireAdmin(h).ServeHTTP(w, r)
	}
}
