package store

import (
	"testing"

	"github.com/callboard/callboard/internal/database"
	"github.com/callboard/callboard/internal/model"
)

func setupPushTestDB(t *testing.T) (*PushStore, *MemberStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPushStore(db), NewMemberStore(db)
}

func TestSubscriptionUpsertByEndpoint(t *testing.T) {
	ps, ms := setupPushTestDB(t)
	member, err := ms.Create(1, "Crew", model.RoleMember)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}

	sub, err := ps.Create(member.ID, "https://push.example/ep1", "p256dh-a", "auth-a")
	if err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	// Re-subscribing the same endpoint replaces the keys, no duplicate row.
	updated, err := ps.Create(member.ID, "https://push.example/ep1", "p256dh-b", "auth-b")
	if err != nil {
		t.Fatalf("upsert subscription: %v", err)
	}
	if updated.ID != sub.ID {
		t.Errorf("upsert created new row: %d vs %d", updated.ID, sub.ID)
	}
	if updated.P256dhKey != "p256dh-b" {
		t.Errorf("p256dh = %q, want replaced key", updated.P256dhKey)
	}

	subs, err := ps.ListByMember(member.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("expected 1 subscription, got %d", len(subs))
	}
}

func TestDeleteByEndpoint(t *testing.T) {
	ps, ms := setupPushTestDB(t)
	member, err := ms.Create(1, "Crew", model.RoleMember)
	if err != nil {
		t.Fatalf("create member: %v", err)
	}
	if _, err := ps.Create(member.ID, "https://push.example/ep2", "k", "a"); err != nil {
		t.Fatalf("create subscription: %v", err)
	}

	if err := ps.DeleteByEndpoint("https://push.example/ep2"); err != nil {
		t.Fatalf("delete by endpoint: %v", err)
	}
	subs, err := ps.ListByMember(member.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected no subscriptions, got %d", len(subs))
	}
}
