// Package transition owns the duty state machine. It is the only code path
// allowed to change a duty's status: every mutation revalidates the
// requested edge against a fixed table, re-checks guards against the store,
// and commits the status change and its audit entry atomically.
package transition

import (
	"log/slog"

	"github.com/callboard/callboard/internal/fault"
	"github.com/callboard/callboard/internal/model"
	"github.com/callboard/callboard/internal/store"
)

// Actor identifies who is requesting a transition.
type Actor struct {
	ID   int64
	Role string
}

func (a Actor) Admin() bool {
	return a.Role == model.RoleAdministrator
}

type roleReq int

const (
	// anyMember edges may be driven by any authenticated member; they exist
	// for automatic steps (entering voting) and quorum escalation.
	anyMember roleReq = iota
	// assigneeOnly edges require the actor to hold an accepted assignment on
	// the duty. Administrators pass as well.
	assigneeOnly
	// adminOnly edges are administrative decisions.
	adminOnly
)

type edge struct {
	role roleReq
	// guard re-validates a transition-specific precondition against the
	// store. nil means no extra guard.
	guard func(a *Authority, duty *model.Duty, actor Actor) error
}

func guardAcceptedAssignment(a *Authority, duty *model.Duty, _ Actor) error {
	n, err := a.assignments.CountAccepted(duty.ID)
	if err != nil {
		return err
	}
	if n == 0 {
		return fault.New(fault.NotAccepted, "duty has no accepted assignment")
	}
	return nil
}

func (a *Authority) claimsByStatus(dutyID int64, status model.ReceiptStatus) ([]model.Receipt, error) {
	receipts, err := a.receipts.ListByDuty(dutyID)
	if err != nil {
		return nil, err
	}
	var matched []model.Receipt
	for _, r := range receipts {
		if r.Status == status {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// guardPendingClaim blocks entry into the claim pipeline unless a claim is
// actually on file, so the edge cannot be driven bare through the API.
func guardPendingClaim(a *Authority, duty *model.Duty, _ Actor) error {
	pending, err := a.claimsByStatus(duty.ID, model.ReceiptPending)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return fault.New(fault.InvalidTransition, "duty has no pending claim")
	}
	return nil
}

// guardApprovedClaim gates the auto-approve edge: a duty may only settle as
// approved on the back of an approved claim.
func guardApprovedClaim(a *Authority, duty *model.Duty, _ Actor) error {
	approved, err := a.claimsByStatus(duty.ID, model.ReceiptApproved)
	if err != nil {
		return err
	}
	if len(approved) == 0 {
		return fault.New(fault.InvalidTransition, "duty has no approved claim")
	}
	return nil
}

// guardProofRequired allows entry into peer voting only for scopes that
// require receipt proof, and only while a claim is awaiting review.
func guardProofRequired(a *Authority, duty *model.Duty, actor Actor) error {
	thresholds, err := a.settings.GetThresholds(duty.ScopeID)
	if err != nil {
		return err
	}
	if !thresholds.RequireReceiptProof {
		return fault.New(fault.InvalidTransition, "peer review requires receipt proof in this scope")
	}
	return guardPendingClaim(a, duty, actor)
}

// guardQuorumOrAdmin lets any member escalate once the pending claim has
// collected the scope's vote quorum; administrators may escalate early.
func guardQuorumOrAdmin(a *Authority, duty *model.Duty, actor Actor) error {
	if actor.Admin() {
		return nil
	}
	thresholds, err := a.settings.GetThresholds(duty.ScopeID)
	if err != nil {
		return err
	}
	pending, err := a.claimsByStatus(duty.ID, model.ReceiptPending)
	if err != nil {
		return err
	}
	for _, r := range pending {
		count, err := a.votes.Count(r.ID)
		if err != nil {
			return err
		}
		if count >= thresholds.VoteQuorum {
			return nil
		}
	}
	return fault.Newf(fault.InvalidTransition, "vote quorum of %d not reached", thresholds.VoteQuorum)
}

// table is the complete state machine. approved, rejected, and completed
// are terminal: they have no entry and no edge ever targets a duty already
// in one of them.
var table = map[model.DutyStatus]map[model.DutyStatus]edge{
	model.DutyPending: {
		model.DutyInProgress: {role: assigneeOnly, guard: guardAcceptedAssignment},
		model.DutyCompleted:  {role: adminOnly},
	},
	model.DutyInProgress: {
		model.DutyPendingReceipt: {role: assigneeOnly, guard: guardPendingClaim},
		model.DutyApproved:       {role: assigneeOnly, guard: guardApprovedClaim},
		model.DutyCompleted:      {role: adminOnly},
	},
	model.DutyPendingReceipt: {
		model.DutyVoting:      {role: anyMember, guard: guardProofRequired},
		model.DutyAdminReview: {role: adminOnly},
		model.DutyCompleted:   {role: adminOnly},
	},
	model.DutyVoting: {
		model.DutyAdminReview: {role: anyMember, guard: guardQuorumOrAdmin},
		model.DutyCompleted:   {role: adminOnly},
	},
	model.DutyAdminReview: {
		model.DutyApproved:  {role: adminOnly},
		model.DutyRejected:  {role: adminOnly},
		model.DutyCompleted: {role: adminOnly},
	},
}

// Allowed reports whether the edge from → to exists in the table,
// independent of actor and guards. The board projector uses it to filter
// drag targets before asking the server.
func Allowed(from, to model.DutyStatus) bool {
	_, ok := table[from][to]
	return ok
}

// Events receives a notification after every committed transition.
type Events interface {
	DutyStatusChanged(duty *model.Duty, from model.DutyStatus)
}

// Authority validates and applies duty status changes. The claim, vote,
// and settings stores back the per-edge guards.
type Authority struct {
	duties      *store.DutyStore
	assignments *store.AssignmentStore
	receipts    *store.ReceiptStore
	votes       *store.VoteStore
	settings    *store.SettingsStore
	events      Events
	logger      *slog.Logger
}

func NewAuthority(duties *store.DutyStore, assignments *store.AssignmentStore, receipts *store.ReceiptStore, votes *store.VoteStore, settings *store.SettingsStore, events Events, logger *slog.Logger) *Authority {
	return &Authority{
		duties:      duties,
		assignments: assignments,
		receipts:    receipts,
		votes:       votes,
		settings:    settings,
		events:      events,
		logger:      logger,
	}
}

// Apply moves the duty to the requested status on behalf of actor. It
// rejects edges missing from the table, actors lacking the edge's role, and
// failed guards, all without touching state. The status write and audit
// entry commit in one transaction; a concurrent transition on the same duty
// surfaces as a store_conflict fault and the caller may re-fetch and retry.
func (a *Authority) Apply(dutyID int64, to model.DutyStatus, actor Actor, reason string) (*model.Duty, error) {
	duty, err := a.duties.GetByID(dutyID)
	if err != nil {
		return nil, err
	}
	if duty == nil {
		return nil, fault.Newf(fault.NotFound, "duty %d not found", dutyID)
	}

	e, ok := table[duty.Status][to]
	if !ok {
		return nil, fault.Newf(fault.InvalidTransition, "no transition from %s to %s", duty.Status, to)
	}

	if err := a.checkRole(e.role, duty, actor); err != nil {
		return nil, err
	}
	if e.guard != nil {
		if err := e.guard(a, duty, actor); err != nil {
			return nil, err
		}
	}

	from := duty.Status
	updated, err := a.duties.TransitionStatus(dutyID, from, to, actor.ID, reason)
	if err != nil {
		return nil, err
	}

	a.logger.Info("duty transition",
		"duty_id", dutyID, "from", from, "to", to, "actor_id", actor.ID)

	if a.events != nil {
		a.events.DutyStatusChanged(updated, from)
	}
	return updated, nil
}

func (a *Authority) checkRole(req roleReq, duty *model.Duty, actor Actor) error {
	switch req {
	case adminOnly:
		if !actor.Admin() {
			return fault.New(fault.Unauthorized, "administrator role required")
		}
	case assigneeOnly:
		if actor.Admin() {
			return nil
		}
		assignment, err := a.assignments.Get(duty.ID, actor.ID)
		if err != nil {
			return err
		}
		if assignment == nil || assignment.Status != model.AssignmentAccepted {
			return fault.New(fault.NotAccepted, "actor has no accepted assignment on this duty")
		}
	}
	return nil
}
