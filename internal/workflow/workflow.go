// Package workflow sequences the business actions of the approval
// pipeline: assignment, claim submission, peer voting, and administrator
// adjudication. Every status change goes through the transition authority;
// this package decides which transition to request by consulting the
// scope's thresholds.
package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/callboard/callboard/internal/fault"
	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/store"
	"github.com/callboard/callboard/internal/transition"
)

// Actor is the authenticated caller of a workflow operation.
type Actor struct {
	ID      int64
	ScopeID int64
	Role    string
}

func (a Actor) Admin() bool {
	return a.Role == model.RoleAdministrator
}

func (a Actor) transitionActor() transition.Actor {
	return transition.Actor{ID: a.ID, Role: a.Role}
}

// Broadcaster publishes committed entity mutations to subscribed sessions.
// Delivery is at-least-once and unordered across entity types; subscribers
// re-fetch rather than apply diffs.
type Broadcaster interface {
	Broadcast(scopeID int64, entity, action string, id int64)
}

// Notifier delivers fire-and-forget user notifications. Implementations
// must never block the caller; failures are logged, not returned.
type Notifier interface {
	Notify(userID int64, title, body string)
}

type Service struct {
	duties      *store.DutyStore
	assignments *store.AssignmentStore
	receipts    *store.ReceiptStore
	votes       *store.VoteStore
	settings    *store.SettingsStore
	members     *store.MemberStore
	authority   *transition.Authority
	broadcaster Broadcaster
	notifier    Notifier
	logger      *slog.Logger
}

type Config struct {
	Duties      *store.DutyStore
	Assignments *store.AssignmentStore
	Receipts    *store.ReceiptStore
	Votes       *store.VoteStore
	Settings    *store.SettingsStore
	Members     *store.MemberStore
	Authority   *transition.Authority
	Broadcaster Broadcaster
	Notifier    Notifier
	Logger      *slog.Logger
}

func New(cfg Config) *Service {
	return &Service{
		duties:      cfg.Duties,
		assignments: cfg.Assignments,
		receipts:    cfg.Receipts,
		votes:       cfg.Votes,
		settings:    cfg.Settings,
		members:     cfg.Members,
		authority:   cfg.Authority,
		broadcaster: cfg.Broadcaster,
		notifier:    cfg.Notifier,
		logger:      cfg.Logger,
	}
}

func (s *Service) broadcast(scopeID int64, entity, action string, id int64) {
	if s.broadcaster != nil {
		s.broadcaster.Broadcast(scopeID, entity, action, id)
	}
}

func (s *Service) notify(userID int64, title, body string) {
	if s.notifier != nil {
		s.notifier.Notify(userID, title, body)
	}
}

// applyWithRetry routes a transition through the authority, retrying once
// when a concurrent write on the same duty loses the compare-and-swap.
func (s *Service) applyWithRetry(ctx context.Context, dutyID int64, to model.DutyStatus, actor transition.Actor, reason string) (*model.Duty, error) {
	var duty *model.Duty
	backoff := retry.WithMaxRetries(1, retry.NewConstant(25*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var applyErr error
		duty, applyErr = s.authority.Apply(dutyID, to, actor, reason)
		if fault.KindOf(applyErr) == fault.StoreConflict {
			return retry.RetryableError(applyErr)
		}
		return applyErr
	})
	if err != nil {
		return nil, err
	}
	return duty, nil
}

// getDuty loads a duty and hides duties from other scopes behind not_found.
func (s *Service) getDuty(actor Actor, dutyID int64) (*model.Duty, error) {
	duty, err := s.duties.GetByID(dutyID)
	if err != nil {
		return nil, err
	}
	if duty == nil || duty.ScopeID != actor.ScopeID {
		return nil, fault.Newf(fault.NotFound, "duty %d not found", dutyID)
	}
	return duty, nil
}

type CreateDutyParams struct {
	Title             string
	Description       string
	Priority          model.Priority
	ExpenseLimitCents int64
	Deadline          *time.Time
	Location          string
	AssigneeIDs       []int64
}

// CreateDuty creates a pending duty and its initial pending assignments.
func (s *Service) CreateDuty(ctx context.Context, actor Actor, p CreateDutyParams) (*model.Duty, error) {
	if !actor.Admin() {
		return nil, fault.New(fault.Unauthorized, "only administrators create duties")
	}
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return nil, fault.New(fault.InvalidArgument, "title is required")
	}
	if p.Priority == "" {
		p.Priority = model.PriorityMedium
	}
	if !p.Priority.Valid() {
		return nil, fault.Newf(fault.InvalidArgument, "unknown priority %q", p.Priority)
	}
	if p.ExpenseLimitCents < 0 {
		return nil, fault.New(fault.InvalidArgument, "expense limit must not be negative")
	}

	for _, userID := range p.AssigneeIDs {
		member, err := s.members.GetByID(userID)
		if err != nil {
			return nil, err
		}
		if member == nil || member.ScopeID != actor.ScopeID {
			return nil, fault.Newf(fault.NotFound, "member %d not found", userID)
		}
	}

	duty, err := s.duties.Create(store.CreateDutyParams{
		ScopeID:           actor.ScopeID,
		Title:             p.Title,
		Description:       p.Description,
		Priority:          p.Priority,
		ExpenseLimitCents: p.ExpenseLimitCents,
		Deadline:          p.Deadline,
		Location:          p.Location,
		CreatedBy:         actor.ID,
	})
	if err != nil {
		return nil, err
	}

	for _, userID := range p.AssigneeIDs {
		if _, err := s.assignments.Create(duty.ID, userID); err != nil {
			return nil, err
		}
		s.notify(userID, "New duty", duty.Title)
	}

	s.broadcast(duty.ScopeID, "duty", "created", duty.ID)
	return duty, nil
}

type UpdateDutyParams struct {
	Title             string
	Description       string
	Priority          model.Priority
	ExpenseLimitCents int64
	Deadline          *time.Time
	Location          string
}

// UpdateDuty edits a duty's descriptive fields and budget. The new expense
// limit may never drop below what has already been approved against the
// duty, otherwise remaining budget would go negative.
func (s *Service) UpdateDuty(ctx context.Context, actor Actor, dutyID int64, p UpdateDutyParams) (*model.Duty, error) {
	if !actor.Admin() {
		return nil, fault.New(fault.Unauthorized, "only administrators edit duties")
	}
	duty, err := s.getDuty(actor, dutyID)
	if err != nil {
		return nil, err
	}

	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return nil, fault.New(fault.InvalidArgument, "title is required")
	}
	if p.Priority == "" {
		p.Priority = duty.Priority
	}
	if !p.Priority.Valid() {
		return nil, fault.Newf(fault.InvalidArgument, "unknown priority %q", p.Priority)
	}
	if p.ExpenseLimitCents < 0 {
		return nil, fault.New(fault.InvalidArgument, "expense limit must not be negative")
	}

	approved, err := s.receipts.ApprovedTotal(dutyID)
	if err != nil {
		return nil, err
	}
	if p.ExpenseLimitCents < approved {
		return nil, fault.Newf(fault.BudgetExceeded,
			"expense limit %d is below the %d already approved", p.ExpenseLimitCents, approved)
	}

	updated, err := s.duties.Update(dutyID, store.UpdateDutyParams{
		Title:             p.Title,
		Description:       p.Description,
		Priority:          p.Priority,
		ExpenseLimitCents: p.ExpenseLimitCents,
		Deadline:          p.Deadline,
		Location:          p.Location,
	})
	if err != nil {
		return nil, err
	}

	s.broadcast(duty.ScopeID, "duty", "updated", duty.ID)
	return updated, nil
}

// AssignDuty adds pending assignments for the given members. Members
// already assigned are left untouched.
func (s *Service) AssignDuty(ctx context.Context, actor Actor, dutyID int64, userIDs []int64) ([]model.Assignment, error) {
	if !actor.Admin() {
		return nil, fault.New(fault.Unauthorized, "only administrators assign duties")
	}
	duty, err := s.getDuty(actor, dutyID)
	if err != nil {
		return nil, err
	}

	for _, userID := range userIDs {
		member, err := s.members.GetByID(userID)
		if err != nil {
			return nil, err
		}
		if member == nil || member.ScopeID != actor.ScopeID {
			return nil, fault.Newf(fault.NotFound, "member %d not found", userID)
		}
		existing, err := s.assignments.Get(dutyID, userID)
		if err != nil {
			return nil, err
		}
		if _, err := s.assignments.Create(dutyID, userID); err != nil {
			return nil, err
		}
		if existing == nil {
			s.notify(userID, "New duty", duty.Title)
			s.broadcast(duty.ScopeID, "assignment", "created", dutyID)
		}
	}
	return s.assignments.ListByDuty(dutyID)
}

// RemoveAssignment detaches a member from a duty.
func (s *Service) RemoveAssignment(ctx context.Context, actor Actor, dutyID, userID int64) error {
	if !actor.Admin() {
		return fault.New(fault.Unauthorized, "only administrators remove assignments")
	}
	duty, err := s.getDuty(actor, dutyID)
	if err != nil {
		return err
	}
	if err := s.assignments.Delete(dutyID, userID); err != nil {
		return err
	}
	s.broadcast(duty.ScopeID, "assignment", "deleted", dutyID)
	return nil
}

// RespondToAssignment records the member's accept/decline. The first accept
// on a pending duty moves it to in_progress; a decline never transitions
// the duty, which stays pending awaiting reassignment.
func (s *Service) RespondToAssignment(ctx context.Context, actor Actor, dutyID int64, accept bool) (*model.Assignment, error) {
	duty, err := s.getDuty(actor, dutyID)
	if err != nil {
		return nil, err
	}
	assignment, err := s.assignments.Get(dutyID, actor.ID)
	if err != nil {
		return nil, err
	}
	if assignment == nil {
		return nil, fault.New(fault.NotFound, "no assignment for this member")
	}

	status := model.AssignmentDeclined
	if accept {
		thresholds, err := s.settings.GetThresholds(actor.ScopeID)
		if err != nil {
			return nil, err
		}
		active, err := s.assignments.CountActiveForUser(actor.ID)
		if err != nil {
			return nil, err
		}
		if active >= thresholds.MaxActiveDutiesPerUser {
			return nil, fault.Newf(fault.LimitExceeded, "member already has %d active duties", active)
		}
		status = model.AssignmentAccepted
	}

	assignment, err = s.assignments.SetStatus(dutyID, actor.ID, status)
	if err != nil {
		return nil, err
	}

	if accept && duty.Status == model.DutyPending {
		_, err := s.applyWithRetry(ctx, dutyID, model.DutyInProgress, actor.transitionActor(), "assignment accepted")
		if err != nil {
			// A concurrent accept may have started the duty already; that
			// is not a failure of this response.
			if fault.KindOf(err) != fault.StoreConflict && fault.KindOf(err) != fault.InvalidTransition {
				return nil, err
			}
		}
	}

	s.broadcast(duty.ScopeID, "assignment", "updated", dutyID)
	s.notify(duty.CreatedBy, "Assignment response", actorResponse(duty.Title, accept))
	return assignment, nil
}

func actorResponse(title string, accept bool) string {
	if accept {
		return title + ": accepted"
	}
	return title + ": declined"
}

type ClaimItem struct {
	Description string
	AmountCents int64
}

type SubmitClaimParams struct {
	DutyID   int64
	Items    []ClaimItem
	Evidence []string
	Notes    string
}

// SubmitClaim validates and records an expense claim, then decides the
// duty's next status from the scope thresholds. The budget check is
// pessimistic: a claim that would push the approved total past the expense
// limit is rejected here, before any row is written.
func (s *Service) SubmitClaim(ctx context.Context, actor Actor, p SubmitClaimParams) (*model.Receipt, error) {
	duty, err := s.getDuty(actor, p.DutyID)
	if err != nil {
		return nil, err
	}
	if duty.Status != model.DutyInProgress {
		return nil, fault.Newf(fault.InvalidTransition, "cannot submit a claim while duty is %s", duty.Status)
	}

	assignment, err := s.assignments.Get(p.DutyID, actor.ID)
	if err != nil {
		return nil, err
	}
	if assignment == nil || assignment.Status != model.AssignmentAccepted {
		return nil, fault.New(fault.NotAccepted, "claims require an accepted assignment")
	}

	if len(p.Items) == 0 {
		return nil, fault.New(fault.InvalidArgument, "claim requires at least one item")
	}
	var total int64
	items := make([]model.ReceiptItem, 0, len(p.Items))
	for _, item := range p.Items {
		if item.AmountCents < 0 {
			return nil, fault.New(fault.InvalidArgument, "item amounts must not be negative")
		}
		total += item.AmountCents
		items = append(items, model.ReceiptItem{Description: item.Description, AmountCents: item.AmountCents})
	}

	thresholds, err := s.settings.GetThresholds(actor.ScopeID)
	if err != nil {
		return nil, err
	}
	if thresholds.RequireReceiptProof && len(p.Evidence) == 0 {
		return nil, fault.New(fault.MissingEvidence, "at least one evidence file is required")
	}

	approved, err := s.receipts.ApprovedTotal(p.DutyID)
	if err != nil {
		return nil, err
	}
	remaining := duty.ExpenseLimitCents - approved
	if total > remaining {
		return nil, fault.Newf(fault.BudgetExceeded, "claim of %d exceeds remaining budget of %d", total, remaining)
	}

	receipt, err := s.receipts.Create(store.CreateReceiptParams{
		DutyID:      p.DutyID,
		SubmittedBy: actor.ID,
		Notes:       p.Notes,
		Items:       items,
		Evidence:    p.Evidence,
	})
	if err != nil {
		return nil, err
	}

	autoApprove := !thresholds.RequireReceiptProof && total <= thresholds.AutoApproveLimitCents
	if autoApprove {
		receipt, err = s.receipts.Decide(receipt.ID, model.ReceiptApproved)
		if err == nil {
			_, err = s.applyWithRetry(ctx, p.DutyID, model.DutyApproved, actor.transitionActor(), "claim auto-approved")
		}
	} else {
		_, err = s.applyWithRetry(ctx, p.DutyID, model.DutyPendingReceipt, actor.transitionActor(), "claim submitted")
		if err == nil && thresholds.RequireReceiptProof {
			_, err = s.applyWithRetry(ctx, p.DutyID, model.DutyVoting, actor.transitionActor(), "peer review opened")
		}
	}
	if err != nil {
		// The duty moved under us between validation and transition. Undo
		// the claim so a failed submission leaves no row behind.
		if delErr := s.receipts.Delete(receipt.ID); delErr != nil {
			s.logger.Error("failed to undo claim after lost transition", "receipt_id", receipt.ID, "error", delErr)
		}
		return nil, err
	}

	s.broadcast(duty.ScopeID, "receipt", "created", receipt.ID)
	if !autoApprove {
		for _, admin := range s.listAdmins(actor.ScopeID) {
			s.notify(admin.ID, "Expense claim submitted", duty.Title)
		}
	}
	return receipt, nil
}

func (s *Service) listAdmins(scopeID int64) []model.Member {
	admins, err := s.members.ListAdmins(scopeID)
	if err != nil {
		s.logger.Error("failed to list administrators", "scope_id", scopeID, "error", err)
		return nil
	}
	return admins
}

// VoteResult is returned by VoteOnClaim.
type VoteResult struct {
	Voted bool `json:"voted"`
	Count int  `json:"count"`
}

// VoteOnClaim toggles the member's endorsement of a claim. When the vote
// count reaches the scope's quorum and the duty is still in voting, the
// duty escalates to administrator review. Votes themselves never decide a
// claim.
func (s *Service) VoteOnClaim(ctx context.Context, actor Actor, receiptID int64) (*VoteResult, error) {
	receipt, err := s.receipts.GetByID(receiptID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fault.Newf(fault.NotFound, "claim %d not found", receiptID)
	}
	duty, err := s.getDuty(actor, receipt.DutyID)
	if err != nil {
		return nil, err
	}

	voted, count, err := s.votes.Toggle(receiptID, actor.ID)
	if err != nil {
		return nil, err
	}
	s.broadcast(duty.ScopeID, "vote", "toggled", receiptID)

	if voted && duty.Status == model.DutyVoting {
		thresholds, err := s.settings.GetThresholds(actor.ScopeID)
		if err != nil {
			return nil, err
		}
		if count >= thresholds.VoteQuorum {
			_, err := s.applyWithRetry(ctx, duty.ID, model.DutyAdminReview, actor.transitionActor(), "vote quorum reached")
			if err != nil && fault.KindOf(err) != fault.StoreConflict {
				return nil, err
			}
			for _, admin := range s.listAdmins(actor.ScopeID) {
				s.notify(admin.ID, "Claim escalated", duty.Title)
			}
		}
	}

	return &VoteResult{Voted: voted, Count: count}, nil
}

// DecideClaim records the administrator's terminal decision on a claim and
// moves the duty out of admin_review. When two administrators race,
// exactly one decision lands; the loser sees invalid_transition because
// the claim is no longer pending.
func (s *Service) DecideClaim(ctx context.Context, actor Actor, receiptID int64, decision model.ReceiptStatus) (*model.Receipt, error) {
	if !actor.Admin() {
		return nil, fault.New(fault.Unauthorized, "only administrators decide claims")
	}
	if decision != model.ReceiptApproved && decision != model.ReceiptRejected {
		return nil, fault.Newf(fault.InvalidArgument, "decision must be approved or rejected, got %q", decision)
	}

	receipt, err := s.receipts.GetByID(receiptID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fault.Newf(fault.NotFound, "claim %d not found", receiptID)
	}
	duty, err := s.getDuty(actor, receipt.DutyID)
	if err != nil {
		return nil, err
	}
	if duty.Status != model.DutyAdminReview {
		return nil, fault.Newf(fault.InvalidTransition, "duty is %s, not awaiting administrator review", duty.Status)
	}

	if decision == model.ReceiptApproved {
		approved, err := s.receipts.ApprovedTotal(duty.ID)
		if err != nil {
			return nil, err
		}
		if approved+receipt.AmountCents > duty.ExpenseLimitCents {
			return nil, fault.Newf(fault.BudgetExceeded, "approving claim would exceed expense limit of %d", duty.ExpenseLimitCents)
		}
	}

	decided, err := s.receipts.Decide(receiptID, decision)
	if fault.KindOf(err) == fault.StoreConflict {
		return nil, fault.New(fault.InvalidTransition, "claim has already been decided")
	}
	if err != nil {
		return nil, err
	}

	target := model.DutyApproved
	if decision == model.ReceiptRejected {
		target = model.DutyRejected
	}
	if _, err := s.applyWithRetry(ctx, duty.ID, target, actor.transitionActor(), "claim "+string(decision)); err != nil {
		return nil, err
	}

	s.broadcast(duty.ScopeID, "receipt", "updated", receiptID)
	s.notify(decided.SubmittedBy, "Claim "+string(decision), duty.Title)
	return decided, nil
}

// OverrideClaim lets an administrator re-decide a claim that is already
// terminal. The override is recorded in the duty's audit log, never
// applied silently, and still honors the budget invariant.
func (s *Service) OverrideClaim(ctx context.Context, actor Actor, receiptID int64, status model.ReceiptStatus, reason string) (*model.Receipt, error) {
	if !actor.Admin() {
		return nil, fault.New(fault.Unauthorized, "only administrators override claims")
	}
	if status != model.ReceiptApproved && status != model.ReceiptRejected {
		return nil, fault.Newf(fault.InvalidArgument, "override must be approved or rejected, got %q", status)
	}

	receipt, err := s.receipts.GetByID(receiptID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, fault.Newf(fault.NotFound, "claim %d not found", receiptID)
	}
	duty, err := s.getDuty(actor, receipt.DutyID)
	if err != nil {
		return nil, err
	}

	if status == model.ReceiptApproved && receipt.Status != model.ReceiptApproved {
		approved, err := s.receipts.ApprovedTotal(duty.ID)
		if err != nil {
			return nil, err
		}
		if approved+receipt.AmountCents > duty.ExpenseLimitCents {
			return nil, fault.Newf(fault.BudgetExceeded, "override would exceed expense limit of %d", duty.ExpenseLimitCents)
		}
	}

	overridden, err := s.receipts.Override(receiptID, status)
	if err != nil {
		return nil, err
	}
	if err := s.duties.AppendAudit(duty.ID, duty.Status, actor.ID, "claim override: "+reason); err != nil {
		return nil, err
	}

	s.broadcast(duty.ScopeID, "receipt", "updated", receiptID)
	s.notify(overridden.SubmittedBy, "Claim "+string(status), duty.Title)
	return overridden, nil
}

// ForceComplete marks the duty done without a financial claim.
func (s *Service) ForceComplete(ctx context.Context, actor Actor, dutyID int64, reason string) (*model.Duty, error) {
	if !actor.Admin() {
		return nil, fault.New(fault.Unauthorized, "only administrators complete duties")
	}
	if _, err := s.getDuty(actor, dutyID); err != nil {
		return nil, err
	}
	return s.applyWithRetry(ctx, dutyID, model.DutyCompleted, actor.transitionActor(), reason)
}

// RequestTransition routes a client-requested status change, such as a
// board drag, through the authority. The edge table and its per-edge role
// requirements are revalidated there; the requested target is never
// trusted as-is.
func (s *Service) RequestTransition(ctx context.Context, actor Actor, dutyID int64, target model.DutyStatus, reason string) (*model.Duty, error) {
	if !target.Valid() {
		return nil, fault.Newf(fault.InvalidArgument, "unknown status %q", target)
	}
	if _, err := s.getDuty(actor, dutyID); err != nil {
		return nil, err
	}
	return s.applyWithRetry(ctx, dutyID, target, actor.transitionActor(), reason)
}

// ForceTransition is the administrator override surface. The target still
// has to be a real edge in the transition table; the authority revalidates
// rather than trusting the requested status.
func (s *Service) ForceTransition(ctx context.Context, actor Actor, dutyID int64, target model.DutyStatus, reason string) (*model.Duty, error) {
	if !actor.Admin() {
		return nil, fault.New(fault.Unauthorized, "only administrators force transitions")
	}
	if !target.Valid() {
		return nil, fault.Newf(fault.InvalidArgument, "unknown status %q", target)
	}
	if _, err := s.getDuty(actor, dutyID); err != nil {
		return nil, err
	}
	return s.applyWithRetry(ctx, dutyID, target, actor.transitionActor(), reason)
}

// DeleteDuty removes the duty and cascades its assignments, receipts, and
// votes.
func (s *Service) DeleteDuty(ctx context.Context, actor Actor, dutyID int64) error {
	if !actor.Admin() {
		return fault.New(fault.Unauthorized, "only administrators delete duties")
	}
	duty, err := s.getDuty(actor, dutyID)
	if err != nil {
		return err
	}
	if err := s.duties.Delete(dutyID); err != nil {
		return err
	}
	s.broadcast(duty.ScopeID, "duty", "deleted", dutyID)
	return nil
}
