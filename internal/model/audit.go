package model

import "time"

// AuditEntry records one committed status transition. Within a duty the
// audit log is the only totally ordered record of what happened.
type AuditEntry struct {
	ID         int64      `json:"id"`
	DutyID     int64      `json:"duty_id"`
	FromStatus DutyStatus `json:"from_status"`
	ToStatus   DutyStatus `json:"to_status"`
	ActorID    int64      `json:"actor_id"`
	Reason     string     `json:"reason"`
	CreatedAt  time.Time  `json:"created_at"`
}
