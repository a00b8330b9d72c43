package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/callboard/callboard/internal/model"
)

type AssignmentStore struct {
	db *sql.DB
}

func NewAssignmentStore(db *sql.DB) *AssignmentStore {
	return &AssignmentStore{db: db}
}

func scanAssignment(scanner interface{ Scan(...any) error }) (*model.Assignment, error) {
	var a model.Assignment
	err := scanner.Scan(&a.ID, &a.DutyID, &a.UserID, &a.Status, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const assignmentCols = `id, duty_id, user_id, status, created_at, updated_at`

// Create inserts a pending assignment. Inserting a pair that already exists
// is a no-op thanks to the unique (duty_id, user_id) index.
func (s *AssignmentStore) Create(dutyID, userID int64) (*model.Assignment, error) {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO assignments (duty_id, user_id, status) VALUES (?, ?, ?)`,
		dutyID, userID, model.AssignmentPending,
	)
	if err != nil {
		return nil, fmt.Errorf("insert assignment: %w", err)
	}
	return s.Get(dutyID, userID)
}

func (s *AssignmentStore) Get(dutyID, userID int64) (*model.Assignment, error) {
	row := s.db.QueryRow(
		`SELECT `+assignmentCols+` FROM assignments WHERE duty_id = ? AND user_id = ?`,
		dutyID, userID,
	)
	a, err := scanAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assignment: %w", err)
	}
	return a, nil
}

func (s *AssignmentStore) ListByDuty(dutyID int64) ([]model.Assignment, error) {
	rows, err := s.db.Query(
		`SELECT `+assignmentCols+` FROM assignments WHERE duty_id = ? ORDER BY id ASC`,
		dutyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	defer rows.Close()

	var assignments []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

func (s *AssignmentStore) SetStatus(dutyID, userID int64, status model.AssignmentStatus) (*model.Assignment, error) {
	_, err := s.db.Exec(
		`UPDATE assignments SET status = ?, updated_at = ? WHERE duty_id = ? AND user_id = ?`,
		status, time.Now().UTC(), dutyID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("set assignment status: %w", err)
	}
	return s.Get(dutyID, userID)
}

func (s *AssignmentStore) Delete(dutyID, userID int64) error {
	_, err := s.db.Exec(`DELETE FROM assignments WHERE duty_id = ? AND user_id = ?`, dutyID, userID)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	return nil
}

// CountAccepted returns how many assignments on the duty are accepted. The
// pending → in_progress guard requires at least one.
func (s *AssignmentStore) CountAccepted(dutyID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM assignments WHERE duty_id = ? AND status = ?`,
		dutyID, model.AssignmentAccepted,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count accepted assignments: %w", err)
	}
	return count, nil
}

// CountActiveForUser returns the number of non-terminal duties on which the
// user holds an accepted assignment. Used to enforce the per-user active
// duty cap.
func (s *AssignmentStore) CountActiveForUser(userID int64) (int, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM assignments a
		 JOIN duties d ON d.id = a.duty_id
		 WHERE a.user_id = ? AND a.status = ? AND d.status IN (?, ?)`,
		userID, model.AssignmentAccepted, model.DutyPending, model.DutyInProgress,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active duties: %w", err)
	}
	return count, nil
}
