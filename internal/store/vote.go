package store

import (
	"database/sql"
	"fmt"
)

type VoteStore struct {
	db *sql.DB
}

func NewVoteStore(db *sql.DB) *VoteStore {
	return &VoteStore{db: db}
}

// Toggle flips the user's vote on a receipt. A second toggle by the same
// user deletes the row rather than recording a "no" vote, so the operation
// is its own inverse. Returns whether the user now has a vote and the new
// total.
func (s *VoteStore) Toggle(receiptID, userID int64) (voted bool, count int, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`DELETE FROM votes WHERE receipt_id = ? AND user_id = ?`, receiptID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("delete vote: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("rows affected: %w", err)
	}

	if deleted == 0 {
		if _, err := tx.Exec(`INSERT INTO votes (receipt_id, user_id) VALUES (?, ?)`, receiptID, userID); err != nil {
			return false, 0, fmt.Errorf("insert vote: %w", err)
		}
		voted = true
	}

	if err := tx.QueryRow(`SELECT COUNT(*) FROM votes WHERE receipt_id = ?`, receiptID).Scan(&count); err != nil {
		return false, 0, fmt.Errorf("count votes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit vote toggle: %w", err)
	}
	return voted, count, nil
}

func (s *VoteStore) Count(receiptID int64) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM votes WHERE receipt_id = ?`, receiptID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count votes: %w", err)
	}
	return count, nil
}

func (s *VoteStore) HasVoted(receiptID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM votes WHERE receipt_id = ? AND user_id = ?`,
		receiptID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return n > 0, nil
}
