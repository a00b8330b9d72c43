package workflow

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/callboard/callboard/internal/database"
	"github.com/callboard/callboard/internal/fault"
	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/store"
	"github.com/callboard/callboard/internal/transition"
)

type recordedEvent struct {
	ScopeID int64
	Entity  string
	Action  string
	ID      int64
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (b *fakeBroadcaster) Broadcast(scopeID int64, entity, action string, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, recordedEvent{scopeID, entity, action, id})
}

type fakeNotifier struct {
	mu    sync.Mutex
	sent  int
	users []int64
}

func (n *fakeNotifier) Notify(userID int64, title, body string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
	n.users = append(n.users, userID)
}

type env struct {
	svc       *Service
	duties    *store.DutyStore
	receipts  *store.ReceiptStore
	votes     *store.VoteStore
	settings  *store.SettingsStore
	broadcast *fakeBroadcaster
	admin     Actor
	crew      Actor
	peers     []Actor
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	members := store.NewMemberStore(db)
	duties := store.NewDutyStore(db)
	assignments := store.NewAssignmentStore(db)
	receipts := store.NewReceiptStore(db)
	votes := store.NewVoteStore(db)
	settings := store.NewSettingsStore(db)

	logger := slog.Default()
	authority := transition.NewAuthority(duties, assignments, receipts, votes, settings, nil, logger)
	broadcast := &fakeBroadcaster{}

	svc := New(Config{
		Duties:      duties,
		Assignments: assignments,
		Receipts:    receipts,
		Votes:       votes,
		Settings:    settings,
		Members:     members,
		Authority:   authority,
		Broadcaster: broadcast,
		Notifier:    &fakeNotifier{},
		Logger:      logger,
	})

	mkActor := func(name, role string) Actor {
		m, err := members.Create(1, name, role)
		if err != nil {
			t.Fatalf("create member %s: %v", name, err)
		}
		return Actor{ID: m.ID, ScopeID: 1, Role: role}
	}

	e := &env{
		svc:       svc,
		duties:    duties,
		receipts:  receipts,
		votes:     votes,
		settings:  settings,
		broadcast: broadcast,
		admin:     mkActor("Stage Manager", model.RoleAdministrator),
		crew:      mkActor("Crew Member", model.RoleMember),
	}
	for _, name := range []string{"Peer One", "Peer Two", "Peer Three"} {
		e.peers = append(e.peers, mkActor(name, model.RoleMember))
	}
	return e
}

func (e *env) setThresholds(t *testing.T, th model.Thresholds) {
	t.Helper()
	if err := e.settings.SetThresholds(1, th); err != nil {
		t.Fatalf("set thresholds: %v", err)
	}
}

// startDuty creates a duty assigned to crew and accepts the assignment,
// leaving it in_progress.
func (e *env) startDuty(t *testing.T, limitCents int64) *model.Duty {
	t.Helper()
	ctx := context.Background()
	duty, err := e.svc.CreateDuty(ctx, e.admin, CreateDutyParams{
		Title:             "Buy gaffer tape",
		Priority:          model.PriorityHigh,
		ExpenseLimitCents: limitCents,
		AssigneeIDs:       []int64{e.crew.ID},
	})
	if err != nil {
		t.Fatalf("create duty: %v", err)
	}
	if _, err := e.svc.RespondToAssignment(ctx, e.crew, duty.ID, true); err != nil {
		t.Fatalf("accept assignment: %v", err)
	}
	duty, err = e.duties.GetByID(duty.ID)
	if err != nil {
		t.Fatalf("reload duty: %v", err)
	}
	if duty.Status != model.DutyInProgress {
		t.Fatalf("duty status = %s, want in_progress", duty.Status)
	}
	return duty
}

func TestAutoApproveFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  10000,
		RequireReceiptProof:    false,
		VoteQuorum:             3,
		MaxActiveDutiesPerUser: 5,
	})

	duty := e.startDuty(t, 50000)

	receipt, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "tape", AmountCents: 8000}},
		Evidence: []string{"ev/abc123"},
	})
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	if receipt.Status != model.ReceiptApproved {
		t.Errorf("receipt status = %s, want approved", receipt.Status)
	}

	duty, _ = e.duties.GetByID(duty.ID)
	if duty.Status != model.DutyApproved {
		t.Errorf("duty status = %s, want approved", duty.Status)
	}

	// A second claim on the now-terminal duty is rejected and creates nothing.
	_, err = e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID: duty.ID,
		Items:  []ClaimItem{{Description: "more tape", AmountCents: 5000}},
	})
	if fault.KindOf(err) != fault.InvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}
	receipts, _ := e.receipts.ListByDuty(duty.ID)
	if len(receipts) != 1 {
		t.Errorf("expected 1 receipt, got %d", len(receipts))
	}
}

func TestPeerReviewFlow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    true,
		VoteQuorum:             3,
		MaxActiveDutiesPerUser: 5,
	})

	duty := e.startDuty(t, 100000)

	receipt, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "lumber", AmountCents: 40000}},
		Evidence: []string{"ev/receipt1"},
	})
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}

	duty, _ = e.duties.GetByID(duty.ID)
	if duty.Status != model.DutyVoting {
		t.Fatalf("duty status = %s, want voting", duty.Status)
	}

	// Three peer votes reach quorum and escalate to admin review.
	for i, peer := range e.peers {
		result, err := e.svc.VoteOnClaim(ctx, peer, receipt.ID)
		if err != nil {
			t.Fatalf("vote %d: %v", i, err)
		}
		if !result.Voted || result.Count != i+1 {
			t.Errorf("vote %d: voted=%v count=%d", i, result.Voted, result.Count)
		}
	}

	duty, _ = e.duties.GetByID(duty.ID)
	if duty.Status != model.DutyAdminReview {
		t.Fatalf("duty status = %s, want admin_review", duty.Status)
	}

	decided, err := e.svc.DecideClaim(ctx, e.admin, receipt.ID, model.ReceiptRejected)
	if err != nil {
		t.Fatalf("decide claim: %v", err)
	}
	if decided.Status != model.ReceiptRejected {
		t.Errorf("receipt status = %s, want rejected", decided.Status)
	}

	duty, _ = e.duties.GetByID(duty.ID)
	if duty.Status != model.DutyRejected {
		t.Errorf("duty status = %s, want rejected", duty.Status)
	}
	total, _ := e.receipts.ApprovedTotal(duty.ID)
	if total != 0 {
		t.Errorf("approved total = %d, want 0 after rejection", total)
	}
}

func TestConflictingDecisionsExactlyOneWins(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    true,
		VoteQuorum:             1,
		MaxActiveDutiesPerUser: 5,
	})

	duty := e.startDuty(t, 100000)
	receipt, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "paint", AmountCents: 20000}},
		Evidence: []string{"ev/paint"},
	})
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	if _, err := e.svc.VoteOnClaim(ctx, e.peers[0], receipt.ID); err != nil {
		t.Fatalf("vote: %v", err)
	}

	if _, err := e.svc.DecideClaim(ctx, e.admin, receipt.ID, model.ReceiptApproved); err != nil {
		t.Fatalf("first decision: %v", err)
	}
	_, err = e.svc.DecideClaim(ctx, e.admin, receipt.ID, model.ReceiptRejected)
	if fault.KindOf(err) != fault.InvalidTransition {
		t.Fatalf("second decision: expected invalid_transition, got %v", err)
	}

	got, _ := e.receipts.GetByID(receipt.ID)
	if got.Status != model.ReceiptApproved {
		t.Errorf("receipt status = %s, want approved from the first decision", got.Status)
	}
}

func TestBudgetExceededCreatesNoClaim(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	duty := e.startDuty(t, 10000)

	_, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "rigging", AmountCents: 10001}},
		Evidence: []string{"ev/rigging"},
	})
	if fault.KindOf(err) != fault.BudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %v", err)
	}

	receipts, _ := e.receipts.ListByDuty(duty.ID)
	if len(receipts) != 0 {
		t.Errorf("expected no receipts, got %d", len(receipts))
	}
	got, _ := e.duties.GetByID(duty.ID)
	if got.Status != model.DutyInProgress {
		t.Errorf("duty status = %s, want in_progress unchanged", got.Status)
	}
}

func TestZeroExpenseLimitMeansNoBudget(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	duty := e.startDuty(t, 0)

	_, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "anything", AmountCents: 1}},
		Evidence: []string{"ev/x"},
	})
	if fault.KindOf(err) != fault.BudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %v", err)
	}
}

func TestMissingEvidence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    true,
		VoteQuorum:             3,
		MaxActiveDutiesPerUser: 5,
	})
	duty := e.startDuty(t, 10000)

	_, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID: duty.ID,
		Items:  []ClaimItem{{Description: "props", AmountCents: 500}},
	})
	if fault.KindOf(err) != fault.MissingEvidence {
		t.Fatalf("expected missing_evidence, got %v", err)
	}
}

func TestVoteToggleIsItsOwnInverse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    true,
		VoteQuorum:             99,
		MaxActiveDutiesPerUser: 5,
	})
	duty := e.startDuty(t, 10000)
	receipt, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "snacks", AmountCents: 500}},
		Evidence: []string{"ev/snacks"},
	})
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}

	first, err := e.svc.VoteOnClaim(ctx, e.peers[0], receipt.ID)
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if !first.Voted || first.Count != 1 {
		t.Errorf("first toggle: voted=%v count=%d, want true/1", first.Voted, first.Count)
	}

	second, err := e.svc.VoteOnClaim(ctx, e.peers[0], receipt.ID)
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if second.Voted || second.Count != 0 {
		t.Errorf("second toggle: voted=%v count=%d, want false/0", second.Voted, second.Count)
	}
}

func TestDeclineLeavesDutyPending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	duty, err := e.svc.CreateDuty(ctx, e.admin, CreateDutyParams{
		Title:       "Strike the set",
		AssigneeIDs: []int64{e.crew.ID},
	})
	if err != nil {
		t.Fatalf("create duty: %v", err)
	}

	assignment, err := e.svc.RespondToAssignment(ctx, e.crew, duty.ID, false)
	if err != nil {
		t.Fatalf("decline: %v", err)
	}
	if assignment.Status != model.AssignmentDeclined {
		t.Errorf("assignment status = %s, want declined", assignment.Status)
	}

	got, _ := e.duties.GetByID(duty.ID)
	if got.Status != model.DutyPending {
		t.Errorf("duty status = %s, want pending after decline", got.Status)
	}
}

func TestMaxActiveDutiesEnforcedOnAccept(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    true,
		VoteQuorum:             3,
		MaxActiveDutiesPerUser: 1,
	})

	e.startDuty(t, 1000)

	second, err := e.svc.CreateDuty(ctx, e.admin, CreateDutyParams{
		Title:       "Hang the lights",
		AssigneeIDs: []int64{e.crew.ID},
	})
	if err != nil {
		t.Fatalf("create second duty: %v", err)
	}
	_, err = e.svc.RespondToAssignment(ctx, e.crew, second.ID, true)
	if fault.KindOf(err) != fault.LimitExceeded {
		t.Fatalf("expected limit_exceeded, got %v", err)
	}
}

func TestNonAdminCannotCreateOrDecide(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.svc.CreateDuty(ctx, e.crew, CreateDutyParams{Title: "Sneaky duty"})
	if fault.KindOf(err) != fault.Unauthorized {
		t.Fatalf("create: expected unauthorized, got %v", err)
	}

	_, err = e.svc.DecideClaim(ctx, e.crew, 1, model.ReceiptApproved)
	if fault.KindOf(err) != fault.Unauthorized {
		t.Fatalf("decide: expected unauthorized, got %v", err)
	}
}

func TestSubmitRequiresAcceptedAssignment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	duty := e.startDuty(t, 10000)

	_, err := e.svc.SubmitClaim(ctx, e.peers[0], SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "coffee", AmountCents: 100}},
		Evidence: []string{"ev/coffee"},
	})
	if fault.KindOf(err) != fault.NotAccepted {
		t.Fatalf("expected not_accepted, got %v", err)
	}
}

func TestDeleteDutyCascades(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    true,
		VoteQuorum:             99,
		MaxActiveDutiesPerUser: 5,
	})
	duty := e.startDuty(t, 10000)
	receipt, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "rope", AmountCents: 900}},
		Evidence: []string{"ev/rope"},
	})
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	if _, err := e.svc.VoteOnClaim(ctx, e.peers[0], receipt.ID); err != nil {
		t.Fatalf("vote: %v", err)
	}

	if err := e.svc.DeleteDuty(ctx, e.admin, duty.ID); err != nil {
		t.Fatalf("delete duty: %v", err)
	}

	gone, _ := e.receipts.GetByID(receipt.ID)
	if gone != nil {
		t.Error("expected receipt to cascade on duty deletion")
	}
	count, _ := e.votes.Count(receipt.ID)
	if count != 0 {
		t.Errorf("expected votes to cascade, got %d", count)
	}
}

func TestApprovedTotalNeverExceedsLimit(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  100000,
		RequireReceiptProof:    false,
		VoteQuorum:             3,
		MaxActiveDutiesPerUser: 5,
	})

	// Two duties, draining budgets through auto-approval; the sum of
	// approved claims stays within each limit.
	for _, limit := range []int64{5000, 12000} {
		duty := e.startDuty(t, limit)
		claimed := int64(0)
		for _, amount := range []int64{4000, 2000, 1500} {
			_, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
				DutyID: duty.ID,
				Items:  []ClaimItem{{Description: "supplies", AmountCents: amount}},
			})
			if err == nil {
				claimed += amount
				// First successful auto-approval terminates the duty.
				break
			}
			if fault.KindOf(err) != fault.BudgetExceeded {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		total, _ := e.receipts.ApprovedTotal(duty.ID)
		if total > limit {
			t.Errorf("approved total %d exceeds limit %d", total, limit)
		}
		if total != claimed {
			t.Errorf("approved total %d, want %d", total, claimed)
		}
	}
}

func TestOverrideClaimIsRecorded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    true,
		VoteQuorum:             1,
		MaxActiveDutiesPerUser: 5,
	})
	duty := e.startDuty(t, 10000)
	receipt, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "gels", AmountCents: 3000}},
		Evidence: []string{"ev/gels"},
	})
	if err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	if _, err := e.svc.VoteOnClaim(ctx, e.peers[0], receipt.ID); err != nil {
		t.Fatalf("vote: %v", err)
	}
	if _, err := e.svc.DecideClaim(ctx, e.admin, receipt.ID, model.ReceiptRejected); err != nil {
		t.Fatalf("decide: %v", err)
	}

	overridden, err := e.svc.OverrideClaim(ctx, e.admin, receipt.ID, model.ReceiptApproved, "vendor invoice verified late")
	if err != nil {
		t.Fatalf("override: %v", err)
	}
	if overridden.Status != model.ReceiptApproved {
		t.Errorf("receipt status = %s, want approved", overridden.Status)
	}

	entries, _ := e.duties.ListAudit(duty.ID)
	var found bool
	for _, entry := range entries {
		if entry.Reason == "claim override: vendor invoice verified late" {
			found = true
		}
	}
	if !found {
		t.Error("expected an audit entry recording the override")
	}
}

func TestRequestTransitionRevalidatesRole(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	duty := e.startDuty(t, 10000)

	// An admin-only edge is rejected for a plain member even when requested
	// explicitly.
	_, err := e.svc.RequestTransition(ctx, e.crew, duty.ID, model.DutyCompleted, "sneaky")
	if fault.KindOf(err) != fault.Unauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	_, err = e.svc.RequestTransition(ctx, e.crew, duty.ID, "bogus", "")
	if fault.KindOf(err) != fault.InvalidArgument {
		t.Fatalf("expected invalid_argument, got %v", err)
	}

	got, _ := e.duties.GetByID(duty.ID)
	if got.Status != model.DutyInProgress {
		t.Errorf("status = %s, want in_progress unchanged", got.Status)
	}
}

func TestRequestedClaimEdgesRequireClaimOnFile(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	duty := e.startDuty(t, 10000)

	// With no claim submitted, the assignee cannot walk the duty into the
	// receipt pipeline or settle it as approved through the transition API.
	for _, target := range []model.DutyStatus{model.DutyPendingReceipt, model.DutyApproved} {
		_, err := e.svc.RequestTransition(ctx, e.crew, duty.ID, target, "")
		if fault.KindOf(err) != fault.InvalidTransition {
			t.Errorf("%s without a claim: expected invalid_transition, got %v", target, err)
		}
	}

	got, _ := e.duties.GetByID(duty.ID)
	if got.Status != model.DutyInProgress {
		t.Errorf("status = %s, want in_progress unchanged", got.Status)
	}
	total, _ := e.receipts.ApprovedTotal(duty.ID)
	if total != 0 {
		t.Errorf("approved total = %d, want 0", total)
	}
}

func TestRequestedEscalationRequiresQuorum(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	duty := e.startDuty(t, 10000)

	// Default scope thresholds require receipt proof with a quorum of 3,
	// so the claim lands in voting.
	if _, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   duty.ID,
		Items:    []ClaimItem{{Description: "cable", AmountCents: 2000}},
		Evidence: []string{"ev/cable"},
	}); err != nil {
		t.Fatalf("submit claim: %v", err)
	}
	got, _ := e.duties.GetByID(duty.ID)
	if got.Status != model.DutyVoting {
		t.Fatalf("duty status = %s, want voting", got.Status)
	}

	// With zero votes a member cannot escalate to admin review.
	_, err := e.svc.RequestTransition(ctx, e.peers[0], duty.ID, model.DutyAdminReview, "")
	if fault.KindOf(err) != fault.InvalidTransition {
		t.Fatalf("expected invalid_transition below quorum, got %v", err)
	}

	// An admin may pull the claim for review before quorum.
	escalated, err := e.svc.RequestTransition(ctx, e.admin, duty.ID, model.DutyAdminReview, "reviewing early")
	if err != nil {
		t.Fatalf("admin escalation: %v", err)
	}
	if escalated.Status != model.DutyAdminReview {
		t.Errorf("status = %s, want admin_review", escalated.Status)
	}
}

func TestUpdateDutyKeepsLimitAboveApproved(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  100000,
		RequireReceiptProof:    false,
		VoteQuorum:             3,
		MaxActiveDutiesPerUser: 5,
	})
	duty := e.startDuty(t, 10000)

	if _, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID: duty.ID,
		Items:  []ClaimItem{{Description: "platform lumber", AmountCents: 8000}},
	}); err != nil {
		t.Fatalf("submit claim: %v", err)
	}

	_, err := e.svc.UpdateDuty(ctx, e.crew, duty.ID, UpdateDutyParams{
		Title:             duty.Title,
		ExpenseLimitCents: 9000,
	})
	if fault.KindOf(err) != fault.Unauthorized {
		t.Fatalf("member edit: expected unauthorized, got %v", err)
	}

	// The limit cannot drop below the 8000 already approved.
	_, err = e.svc.UpdateDuty(ctx, e.admin, duty.ID, UpdateDutyParams{
		Title:             duty.Title,
		ExpenseLimitCents: 5000,
	})
	if fault.KindOf(err) != fault.BudgetExceeded {
		t.Fatalf("expected budget_exceeded, got %v", err)
	}
	got, _ := e.duties.GetByID(duty.ID)
	if got.ExpenseLimitCents != 10000 {
		t.Errorf("limit = %d, want 10000 unchanged after rejection", got.ExpenseLimitCents)
	}

	before := len(e.broadcast.events)
	updated, err := e.svc.UpdateDuty(ctx, e.admin, duty.ID, UpdateDutyParams{
		Title:             "Buy gaffer tape and cable ties",
		ExpenseLimitCents: 8000,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ExpenseLimitCents != 8000 {
		t.Errorf("limit = %d, want 8000", updated.ExpenseLimitCents)
	}
	if updated.Title != "Buy gaffer tape and cable ties" {
		t.Errorf("title = %q", updated.Title)
	}

	events := e.broadcast.events[before:]
	if len(events) != 1 || events[0] != (recordedEvent{1, "duty", "updated", duty.ID}) {
		t.Errorf("broadcast events after update = %+v, want one duty/updated", events)
	}
}

func TestForceCompleteFromEveryNonTerminalState(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.setThresholds(t, model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    true,
		VoteQuorum:             99,
		MaxActiveDutiesPerUser: 50,
	})

	// pending
	pending, err := e.svc.CreateDuty(ctx, e.admin, CreateDutyParams{Title: "Pending duty"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := e.svc.ForceComplete(ctx, e.admin, pending.ID, "cancelled"); err != nil {
		t.Errorf("force complete from pending: %v", err)
	}

	// in_progress
	inProgress := e.startDuty(t, 10000)
	if _, err := e.svc.ForceComplete(ctx, e.admin, inProgress.ID, "done offline"); err != nil {
		t.Errorf("force complete from in_progress: %v", err)
	}

	// voting
	voting := e.startDuty(t, 10000)
	if _, err := e.svc.SubmitClaim(ctx, e.crew, SubmitClaimParams{
		DutyID:   voting.ID,
		Items:    []ClaimItem{{Description: "x", AmountCents: 100}},
		Evidence: []string{"ev/x"},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := e.svc.ForceComplete(ctx, e.admin, voting.ID, "resolved offline"); err != nil {
		t.Errorf("force complete from voting: %v", err)
	}

	// terminal: must fail
	_, err = e.svc.ForceComplete(ctx, e.admin, pending.ID, "again")
	if fault.KindOf(err) != fault.InvalidTransition {
		t.Errorf("force complete from completed: expected invalid_transition, got %v", err)
	}
}

func TestForceTransitionIsAdminGated(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	duty := e.startDuty(t, 10000)

	_, err := e.svc.ForceTransition(ctx, e.crew, duty.ID, model.DutyCompleted, "not allowed")
	if fault.KindOf(err) != fault.Unauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	// Even an admin cannot force an edge the table does not contain.
	_, err = e.svc.ForceTransition(ctx, e.admin, duty.ID, model.DutyVoting, "skip the receipt")
	if fault.KindOf(err) != fault.InvalidTransition {
		t.Fatalf("expected invalid_transition, got %v", err)
	}

	forced, err := e.svc.ForceTransition(ctx, e.admin, duty.ID, model.DutyCompleted, "settled offline")
	if err != nil {
		t.Fatalf("force transition: %v", err)
	}
	if forced.Status != model.DutyCompleted {
		t.Errorf("status = %s, want completed", forced.Status)
	}
}
