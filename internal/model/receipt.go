package model

import "time"

type ReceiptStatus string

const (
	ReceiptPending  ReceiptStatus = "pending"
	ReceiptApproved ReceiptStatus = "approved"
	ReceiptRejected ReceiptStatus = "rejected"
)

// Receipt is an itemized expense claim submitted against a duty's budget.
// AmountCents always equals the sum of its item amounts.
type Receipt struct {
	ID          int64         `json:"id"`
	DutyID      int64         `json:"duty_id"`
	SubmittedBy int64         `json:"submitted_by"`
	AmountCents int64         `json:"amount_cents"`
	Status      ReceiptStatus `json:"status"`
	Notes       string        `json:"notes"`
	Items       []ReceiptItem `json:"items,omitempty"`
	Evidence    []string      `json:"evidence,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type ReceiptItem struct {
	ID          int64  `json:"id"`
	ReceiptID   int64  `json:"receipt_id"`
	Description string `json:"description"`
	AmountCents int64  `json:"amount_cents"`
	Position    int    `json:"position"`

	// Category is derived from the description on the way out of the API,
	// not stored.
	Category string `json:"category,omitempty"`
}
