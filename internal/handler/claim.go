package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/callboard/callboard/internal/auth"
	"github.com/callboard/callboard/internal/expense"
	"github.com/callboard/callboard/internal/fault"
	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/store"
	"github.com/callboard/callboard/internal/workflow"
)

type ClaimHandler struct {
	workflow *workflow.Service
	receipts *store.ReceiptStore
	duties   *store.DutyStore
	logger   *slog.Logger
}

func NewClaimHandler(wf *workflow.Service, rs *store.ReceiptStore, ds *store.DutyStore, logger *slog.Logger) *ClaimHandler {
	return &ClaimHandler{workflow: wf, receipts: rs, duties: ds, logger: logger}
}

type claimItemRequest struct {
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
}

type claimRequest struct {
	Items    []claimItemRequest `json:"items"`
	Evidence []string           `json:"evidence"`
	Notes    string             `json:"notes"`
}

func (h *ClaimHandler) Submit(w http.ResponseWriter, r *http.Request) {
	dutyID, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	items := make([]workflow.ClaimItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, workflow.ClaimItem{Description: item.Description, AmountCents: item.AmountCents})
	}

	receipt, err := h.workflow.SubmitClaim(r.Context(), actorFrom(r), workflow.SubmitClaimParams{
		DutyID:   dutyID,
		Items:    items,
		Evidence: req.Evidence,
		Notes:    req.Notes,
	})
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *ClaimHandler) ListByDuty(w http.ResponseWriter, r *http.Request) {
	dutyID, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	duty, err := h.duties.GetByID(dutyID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if duty == nil || duty.ScopeID != auth.ScopeID(r.Context()) {
		writeFault(w, h.logger, fault.Newf(fault.NotFound, "duty %d not found", dutyID))
		return
	}

	receipts, err := h.receipts.ListByDuty(dutyID)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	if receipts == nil {
		receipts = []model.Receipt{}
	}
	for i := range receipts {
		categorizeItems(receipts[i].Items)
	}
	writeJSON(w, http.StatusOK, receipts)
}

func categorizeItems(items []model.ReceiptItem) {
	for i := range items {
		items[i].Category = expense.Categorize(items[i].Description)
	}
}

// getScoped loads a receipt and rejects claims on duties outside the
// caller's scope as not found.
func (h *ClaimHandler) getScoped(r *http.Request, id int64) (*model.Receipt, error) {
	receipt, err := h.receipts.GetByID(id)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fault.Newf(fault.NotFound, "claim %d not found", id)
	}
	duty, err := h.duties.GetByID(receipt.DutyID)
	if err != nil {
		return nil, err
	}
	if duty == nil || duty.ScopeID != auth.ScopeID(r.Context()) {
		return nil, fault.Newf(fault.NotFound, "claim %d not found", id)
	}
	return receipt, nil
}

func (h *ClaimHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	receipt, err := h.getScoped(r, id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	categorizeItems(receipt.Items)
	writeJSON(w, http.StatusOK, receipt)
}

func (h *ClaimHandler) Vote(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	result, err := h.workflow.VoteOnClaim(r.Context(), actorFrom(r), id)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type decisionRequest struct {
	Decision string `json:"decision"`
}

func (h *ClaimHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	receipt, err := h.workflow.DecideClaim(r.Context(), actorFrom(r), id, model.ReceiptStatus(req.Decision))
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

type overrideRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (h *ClaimHandler) Override(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.Reason == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reason is required"})
		return
	}

	receipt, err := h.workflow.OverrideClaim(r.Context(), actorFrom(r), id, model.ReceiptStatus(req.Status), req.Reason)
	if err != nil {
		writeFault(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}
