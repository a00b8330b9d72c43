package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/callboard/callboard/internal/model"
)

const (
	keyAutoApproveLimit = "auto_approve_limit_cents"
	keyRequireProof     = "require_receipt_proof"
	keyVoteQuorum       = "vote_quorum"
	keyMaxActiveDuties  = "max_active_duties_per_user"
)

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (s *SettingsStore) Get(scopeID int64, key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE scope_id = ? AND key = ?`, scopeID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("setting %q not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("get setting %q: %w", key, err)
	}
	return value, nil
}

func (s *SettingsStore) Set(scopeID int64, key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO settings (scope_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(scope_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		scopeID, key, value, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set setting %q: %w", key, err)
	}
	return nil
}

// GetThresholds reads the approval-policy knobs for a scope. Missing or
// malformed values fall back to conservative defaults (everything reviewed,
// quorum of 3).
func (s *SettingsStore) GetThresholds(scopeID int64) (model.Thresholds, error) {
	t := model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    true,
		VoteQuorum:             3,
		MaxActiveDutiesPerUser: 5,
	}

	rows, err := s.db.Query(
		`SELECT key, value FROM settings WHERE scope_id = ? AND key IN (?, ?, ?, ?)`,
		scopeID, keyAutoApproveLimit, keyRequireProof, keyVoteQuorum, keyMaxActiveDuties,
	)
	if err != nil {
		return t, fmt.Errorf("get thresholds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return t, fmt.Errorf("scan threshold: %w", err)
		}
		switch key {
		case keyAutoApproveLimit:
			if v, err := strconv.ParseInt(value, 10, 64); err == nil && v >= 0 {
				t.AutoApproveLimitCents = v
			}
		case keyRequireProof:
			t.RequireReceiptProof = value == "true"
		case keyVoteQuorum:
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				t.VoteQuorum = v
			}
		case keyMaxActiveDuties:
			if v, err := strconv.Atoi(value); err == nil && v > 0 {
				t.MaxActiveDutiesPerUser = v
			}
		}
	}
	return t, rows.Err()
}

// SetThresholds writes all four knobs for a scope.
func (s *SettingsStore) SetThresholds(scopeID int64, t model.Thresholds) error {
	proof := "false"
	if t.RequireReceiptProof {
		proof = "true"
	}
	pairs := map[string]string{
		keyAutoApproveLimit: strconv.FormatInt(t.AutoApproveLimitCents, 10),
		keyRequireProof:     proof,
		keyVoteQuorum:       strconv.Itoa(t.VoteQuorum),
		keyMaxActiveDuties:  strconv.Itoa(t.MaxActiveDutiesPerUser),
	}
	for key, value := range pairs {
		if err := s.Set(scopeID, key, value); err != nil {
			return err
		}
	}
	return nil
}
