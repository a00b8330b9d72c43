package database

import "testing"

func TestOpenEnforcesForeignKeys(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	var enabled int
	if err := db.QueryRow(`PRAGMA foreign_keys`).Scan(&enabled); err != nil {
		t.Fatalf("query pragma: %v", err)
	}
	if enabled != 1 {
		t.Fatalf("foreign_keys = %d, want 1", enabled)
	}

	// Child rows must refuse parents that do not exist.
	_, err = db.Exec(
		`INSERT INTO assignments (duty_id, user_id, status) VALUES (?, ?, ?)`,
		987654, 987654, "pending",
	)
	if err == nil {
		t.Fatal("expected foreign key violation for orphan assignment")
	}
}

func TestDutyDeleteCascadesToChildren(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	res, err := db.Exec(
		`INSERT INTO members (scope_id, name, role) VALUES (1, 'Crew', 'member')`,
	)
	if err != nil {
		t.Fatalf("insert member: %v", err)
	}
	memberID, _ := res.LastInsertId()

	res, err = db.Exec(
		`INSERT INTO duties (scope_id, title, priority, status, expense_limit_cents, created_by) VALUES (1, 'Strike set', 'medium', 'pending', 0, ?)`,
		memberID,
	)
	if err != nil {
		t.Fatalf("insert duty: %v", err)
	}
	dutyID, _ := res.LastInsertId()

	if _, err := db.Exec(
		`INSERT INTO assignments (duty_id, user_id, status) VALUES (?, ?, 'accepted')`,
		dutyID, memberID,
	); err != nil {
		t.Fatalf("insert assignment: %v", err)
	}

	if _, err := db.Exec(`DELETE FROM duties WHERE id = ?`, dutyID); err != nil {
		t.Fatalf("delete duty: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM assignments WHERE duty_id = ?`, dutyID).Scan(&n); err != nil {
		t.Fatalf("count assignments: %v", err)
	}
	if n != 0 {
		t.Fatalf("assignments remaining after duty delete = %d, want 0", n)
	}
}
