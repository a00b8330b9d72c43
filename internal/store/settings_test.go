package store

import (
	"testing"

	"github.com/callboard/callboard/internal/database"
	"github.com/callboard/callboard/internal/model"
)

func setupSettingsTestDB(t *testing.T) *SettingsStore {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSettingsStore(db)
}

func TestThresholdDefaultsSeeded(t *testing.T) {
	ss := setupSettingsTestDB(t)

	th, err := ss.GetThresholds(1)
	if err != nil {
		t.Fatalf("get thresholds: %v", err)
	}
	if th.AutoApproveLimitCents != 5000 {
		t.Errorf("auto approve limit = %d, want 5000", th.AutoApproveLimitCents)
	}
	if !th.RequireReceiptProof {
		t.Error("require_receipt_proof must default to true")
	}
	if th.VoteQuorum != 3 {
		t.Errorf("vote quorum = %d, want 3", th.VoteQuorum)
	}
	if th.MaxActiveDutiesPerUser != 5 {
		t.Errorf("max active duties = %d, want 5", th.MaxActiveDutiesPerUser)
	}
}

func TestSetThresholdsRoundTrip(t *testing.T) {
	ss := setupSettingsTestDB(t)

	want := model.Thresholds{
		AutoApproveLimitCents:  0,
		RequireReceiptProof:    false,
		VoteQuorum:             2,
		MaxActiveDutiesPerUser: 10,
	}
	if err := ss.SetThresholds(1, want); err != nil {
		t.Fatalf("set thresholds: %v", err)
	}

	got, err := ss.GetThresholds(1)
	if err != nil {
		t.Fatalf("get thresholds: %v", err)
	}
	if got != want {
		t.Errorf("thresholds = %+v, want %+v", got, want)
	}
}

func TestSetOverwritesExistingKey(t *testing.T) {
	ss := setupSettingsTestDB(t)

	if err := ss.Set(1, "vote_quorum", "4"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := ss.Set(1, "vote_quorum", "5"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, err := ss.Get(1, "vote_quorum")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "5" {
		t.Errorf("value = %q, want 5", got)
	}
}
