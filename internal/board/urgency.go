package board

import (
	"time"

	"github.com/callboard/callboard/internal/model"
)

type Urgency string

const (
	UrgencyNone    Urgency = "none"
	UrgencyOnTrack Urgency = "on_track"
	UrgencyDueSoon Urgency = "due_soon"
	UrgencyOverdue Urgency = "overdue"
	UrgencySettled Urgency = "settled"
)

// dueSoonWindow is how far ahead of the deadline a duty starts surfacing
// as due soon.
const dueSoonWindow = 48 * time.Hour

// UrgencyFor classifies a duty's deadline relative to now. Terminal duties
// are settled regardless of deadline, and duties without a deadline carry
// no urgency at all.
func UrgencyFor(duty model.Duty, now time.Time) Urgency {
	if duty.Status.Terminal() {
		return UrgencySettled
	}
	if duty.Deadline == nil {
		return UrgencyNone
	}
	if duty.Deadline.Before(now) {
		return UrgencyOverdue
	}
	if duty.Deadline.Sub(now) <= dueSoonWindow {
		return UrgencyDueSoon
	}
	return UrgencyOnTrack
}
