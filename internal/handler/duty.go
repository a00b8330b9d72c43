package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/callboard/callboard/internal/auth"
	"github.com/callboard/callboard/internal/board"
	"github.com/callboard/callboard/internal/fault"
	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/store"
	"github.com/callboard/callboard/internal/workflow"
)

type DutyHandler struct {
	workflow    *workflow.Service
	duties      *store.DutyStore
	assignments *store.AssignmentStore
	receipts    *store.ReceiptStore
	logger      *slog.Logger
}

func NewDutyHandler(wf *workflow.Service, ds *store.DutyStore, as *store.AssignmentStore, rs *store.ReceiptStore, logger *slog.Logger) *DutyHandler {
	return &DutyHandler{workflow: wf, duties: ds, assignments: as, receipts: rs, logger: logger}
}

type dutyRequest struct {
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Priority          string  `json:"priority"`
	ExpenseLimitCents int64   `json:"expense_limit_cents"`
	Deadline          *string `json:"deadline"`
	Location          string  `json:"location"`
	AssigneeIDs       []int64 `json:"assignee_ids"`
}

func parseDeadline(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (h *DutyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dutyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deadline must be RFC3339 format"})
		return
	}

	duty, err := h.workflow.CreateDuty(r.Context(), actorFrom(r), workflow.CreateDutyParams{
		Title:             req.Title,
		Description:       req.Description,
		Priority:          model.Priority(req.Priority),
		ExpenseLimitCents: req.ExpenseLimitCents,
		Deadline:          deadline,
		Location:          req.Location,
		AssigneeIDs:       req.AssigneeIDs,
	})
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, duty)
}

func (h *DutyHandler) List(w http.ResponseWriter, r *http.Request) {
	var filter store.ListFilter
	if s := r.URL.Query().Get("status"); s != "" {
		filter.Status = model.DutyStatus(s)
	}
	if r.URL.Query().Get("mine") == "true" {
		filter.AssigneeID = auth.UserID(r.Context())
	}

	duties, err := h.duties.List(auth.ScopeID(r.Context()), filter)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dutyViews(duties))
}

// dutyView is a duty plus its deadline urgency, which is derived at read
// time and never stored.
type dutyView struct {
	model.Duty
	Urgency board.Urgency `json:"urgency"`
}

func dutyViews(duties []model.Duty) []dutyView {
	now := time.Now()
	views := make([]dutyView, 0, len(duties))
	for _, d := range duties {
		views = append(views, dutyView{Duty: d, Urgency: board.UrgencyFor(d, now)})
	}
	return views
}

// Board returns the duty set grouped into presentation lanes, the
// server-side equivalent of what the client projector derives.
func (h *DutyHandler) Board(w http.ResponseWriter, r *http.Request) {
	duties, err := h.duties.List(auth.ScopeID(r.Context()), store.ListFilter{})
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}

	now := time.Now()
	lanes := make(map[board.Lane][]dutyView, len(board.Order))
	for _, lane := range board.Order {
		lanes[lane] = []dutyView{}
	}
	for _, d := range duties {
		lane := board.LaneFor(d.Status)
		lanes[lane] = append(lanes[lane], dutyView{Duty: d, Urgency: board.UrgencyFor(d, now)})
	}
	writeJSON(w, http.StatusOK, lanes)
}

type dutyDetail struct {
	Duty        *model.Duty        `json:"duty"`
	Assignments []model.Assignment `json:"assignments"`
	Receipts    []model.Receipt    `json:"receipts"`
}

func (h *DutyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	duty, err := h.duties.GetByID(id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if duty == nil || duty.ScopeID != auth.ScopeID(r.Context()) {
		writeFault(w, h.logger, fault.Newf(fault.NotFound, "duty %d not found", id))
		return
	}

	assignments, err := h.assignments.ListByDuty(id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	receipts, err := h.receipts.ListByDuty(id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dutyDetail{Duty: duty, Assignments: assignments, Receipts: receipts})
}

func (h *DutyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}

	var req dutyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "deadline must be RFC3339 format"})
		return
	}

	updated, err := h.workflow.UpdateDuty(r.Context(), actorFrom(r), id, workflow.UpdateDutyParams{
		Title:             req.Title,
		Description:       req.Description,
		Priority:          model.Priority(req.Priority),
		ExpenseLimitCents: req.ExpenseLimitCents,
		Deadline:          deadline,
		Location:          req.Location,
	})
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *DutyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if err := h.workflow.DeleteDuty(r.Context(), actorFrom(r), id); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// Transition handles board drags and explicit status-change requests.
// Role checks happen per edge in the transition authority.
func (h *DutyHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	duty, err := h.workflow.RequestTransition(r.Context(), actorFrom(r), id, model.DutyStatus(req.To), req.Reason)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, duty)
}

// Force applies an administrator-requested transition. The authority still
// validates the edge; force does not mean arbitrary.
func (h *DutyHandler) Force(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	duty, err := h.workflow.ForceTransition(r.Context(), actorFrom(r), id, model.DutyStatus(req.To), req.Reason)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, duty)
}

type completeRequest struct {
	Reason string `json:"reason"`
}

func (h *DutyHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	duty, err := h.workflow.ForceComplete(r.Context(), actorFrom(r), id, req.Reason)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, duty)
}

func (h *DutyHandler) Audit(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	duty, err := h.duties.GetByID(id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if duty == nil || duty.ScopeID != auth.ScopeID(r.Context()) {
		writeFault(w, h.logger, fault.Newf(fault.NotFound, "duty %d not found", id))
		return
	}

	entries, err := h.duties.ListAudit(id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

type assignRequest struct {
	UserIDs []int64 `json:"user_ids"`
}

func (h *DutyHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if len(req.UserIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_ids is required"})
		return
	}

	assignments, err := h.workflow.AssignDuty(r.Context(), actorFrom(r), id, req.UserIDs)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

func (h *DutyHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	userID, err := parseIDParam(r, "userID")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid user id"})
		return
	}
	if err := h.workflow.RemoveAssignment(r.Context(), actorFrom(r), id, userID); err != nil {
		writeFault(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type respondRequest struct {
	Accept bool `json:"accept"`
}

func (h *DutyHandler) Respond(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	assignment, err := h.workflow.RespondToAssignment(r.Context(), actorFrom(r), id, req.Accept)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}
