// Package board derives the lane-grouped view a client renders from the
// duty set. The projector is a read-side cache only: it never writes
// authority, and any authoritative copy or broadcast event replaces its
// local state wholesale.
package board

import (
	"fmt"
	"sort"
	"sync"

	"github.com/callboard/callboard/internal/model"
)

type Lane string

const (
	LaneTodo       Lane = "todo"
	LaneInProgress Lane = "in_progress"
	LaneReview     Lane = "review"
	LaneDone       Lane = "done"
)

// Lanes in display order.
var Order = []Lane{LaneTodo, LaneInProgress, LaneReview, LaneDone}

// LaneFor maps a duty status to its presentation lane.
func LaneFor(status model.DutyStatus) Lane {
	switch status {
	case model.DutyPending:
		return LaneTodo
	case model.DutyInProgress:
		return LaneInProgress
	case model.DutyPendingReceipt, model.DutyVoting, model.DutyAdminReview:
		return LaneReview
	default:
		return LaneDone
	}
}

// Source supplies the authoritative duty set when the projector needs to
// reconcile, typically backed by the REST list endpoint.
type Source interface {
	ListDuties() ([]model.Duty, error)
}

// Projector holds the client's local copy of the board. Drag intents are
// staged optimistically on top of the authoritative copy and dropped the
// moment the server answers or any event touches the same duty.
type Projector struct {
	mu     sync.Mutex
	source Source
	duties map[int64]model.Duty
	staged map[int64]model.DutyStatus
}

func NewProjector(source Source) *Projector {
	return &Projector{
		source: source,
		duties: make(map[int64]model.Duty),
		staged: make(map[int64]model.DutyStatus),
	}
}

// Replace swaps in a full authoritative duty set and clears every staged
// intent. Reconciliation is always a full replace, never a merge.
func (p *Projector) Replace(duties []model.Duty) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.duties = make(map[int64]model.Duty, len(duties))
	for _, d := range duties {
		p.duties[d.ID] = d
	}
	p.staged = make(map[int64]model.DutyStatus)
}

// Refresh pulls the authoritative set from the source and replaces the
// local copy.
func (p *Projector) Refresh() error {
	duties, err := p.source.ListDuties()
	if err != nil {
		return fmt.Errorf("refresh board: %w", err)
	}
	p.Replace(duties)
	return nil
}

// Stage records a drag-initiated status intent for a duty the projector
// knows about. The caller still sends the real transition request; the
// staged status only affects how Lanes groups until Confirm or Discard.
func (p *Projector) Stage(dutyID int64, to model.DutyStatus) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.duties[dutyID]; !ok {
		return false
	}
	p.staged[dutyID] = to
	return true
}

// Confirm installs the server's authoritative copy of one duty and drops
// any staged intent for it.
func (p *Projector) Confirm(duty model.Duty) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.duties[duty.ID] = duty
	delete(p.staged, duty.ID)
}

// Discard drops the staged intent for a duty, reverting its lane to the
// last authoritative status. Used when the server rejects a transition.
func (p *Projector) Discard(dutyID int64) {
	p.mu.Lock()
	delete(p.staged, dutyID)
	p.mu.Unlock()
}

// Observe handles a broadcast event. Events are at-least-once and possibly
// out of order, so they are treated as idempotent refetch triggers: any
// event touching a known duty (or any duty creation/deletion) discards
// local optimism and re-pulls the full set.
func (p *Projector) Observe(entity string, id int64) error {
	p.mu.Lock()
	_, known := p.duties[id]
	p.mu.Unlock()

	if entity == "duty" || known {
		return p.Refresh()
	}
	return nil
}

// Lanes groups the local duty set, staged intents applied, into display
// lanes. Duties within a lane are ordered newest first.
func (p *Projector) Lanes() map[Lane][]model.Duty {
	p.mu.Lock()
	defer p.mu.Unlock()

	lanes := make(map[Lane][]model.Duty, len(Order))
	for _, d := range p.duties {
		if staged, ok := p.staged[d.ID]; ok {
			d.Status = staged
		}
		lane := LaneFor(d.Status)
		lanes[lane] = append(lanes[lane], d)
	}
	for _, duties := range lanes {
		sort.Slice(duties, func(i, j int) bool { return duties[i].ID > duties[j].ID })
	}
	return lanes
}
