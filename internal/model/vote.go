package model

import "time"

// Vote is a non-binding peer endorsement of a receipt. Unique per
// (receipt_id, user_id); toggling off deletes the row.
type Vote struct {
	ID        int64     `json:"id"`
	ReceiptID int64     `json:"receipt_id"`
	UserID    int64     `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
