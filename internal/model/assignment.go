package model

import "time"

type AssignmentStatus string

const (
	AssignmentPending  AssignmentStatus = "pending"
	AssignmentAccepted AssignmentStatus = "accepted"
	AssignmentDeclined AssignmentStatus = "declined"
)

// Assignment binds one member to one duty. At most one row exists per
// (duty_id, user_id) pair.
type Assignment struct {
	ID        int64            `json:"id"`
	DutyID    int64            `json:"duty_id"`
	UserID    int64            `json:"user_id"`
	Status    AssignmentStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}
