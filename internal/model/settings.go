package model

import "time"

type Setting struct {
	ScopeID   int64     `json:"scope_id"`
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Thresholds are the approval-policy knobs read by the workflow. They are
// owned by the settings collaborator and treated as read-only here.
type Thresholds struct {
	AutoApproveLimitCents  int64 `json:"auto_approve_limit_cents"`
	RequireReceiptProof    bool  `json:"require_receipt_proof"`
	VoteQuorum             int   `json:"vote_quorum"`
	MaxActiveDutiesPerUser int   `json:"max_active_duties_per_user"`
}
