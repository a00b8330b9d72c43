package model

import "time"

type DutyStatus string

const (
	DutyPending        DutyStatus = "pending"
	DutyInProgress     DutyStatus = "in_progress"
	DutyPendingReceipt DutyStatus = "pending_receipt"
	DutyVoting         DutyStatus = "voting"
	DutyAdminReview    DutyStatus = "admin_review"
	DutyApproved       DutyStatus = "approved"
	DutyRejected       DutyStatus = "rejected"
	DutyCompleted      DutyStatus = "completed"
)

// Terminal reports whether a duty status has no outbound transitions.
func (s DutyStatus) Terminal() bool {
	switch s {
	case DutyApproved, DutyRejected, DutyCompleted:
		return true
	}
	return false
}

// Valid reports whether s is one of the canonical statuses. Legacy strings
// from older databases are normalized at migration time, never branched on.
func (s DutyStatus) Valid() bool {
	switch s {
	case DutyPending, DutyInProgress, DutyPendingReceipt, DutyVoting,
		DutyAdminReview, DutyApproved, DutyRejected, DutyCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Duty is a delegated task with an optional spending budget, scoped to one
// organization. ExpenseLimitCents of 0 means the duty carries no budget.
type Duty struct {
	ID                int64      `json:"id"`
	ScopeID           int64      `json:"scope_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	Priority          Priority   `json:"priority"`
	Status            DutyStatus `json:"status"`
	ExpenseLimitCents int64      `json:"expense_limit_cents"`
	Deadline          *time.Time `json:"deadline"`
	Location          string     `json:"location"`
	CreatedBy         int64      `json:"created_by"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
