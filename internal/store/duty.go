package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/callboard/callboard/internal/fault"
	"github.com/callboard/callboard/internal/model"
)

type DutyStore struct {
	db *sql.DB
}

func NewDutyStore(db *sql.DB) *DutyStore {
	return &DutyStore{db: db}
}

func scanDuty(scanner interface{ Scan(...any) error }) (*model.Duty, error) {
	var d model.Duty
	var deadline sql.NullTime

	err := scanner.Scan(
		&d.ID, &d.ScopeID, &d.Title, &d.Description, &d.Priority, &d.Status,
		&d.ExpenseLimitCents, &deadline, &d.Location, &d.CreatedBy,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if deadline.Valid {
		d.Deadline = &deadline.Time
	}
	return &d, nil
}

const dutyCols = `id, scope_id, title, description, priority, status, expense_limit_cents, deadline, location, created_by, created_at, updated_at`

type CreateDutyParams struct {
	ScopeID           int64
	Title             string
	Description       string
	Priority          model.Priority
	ExpenseLimitCents int64
	Deadline          *time.Time
	Location          string
	CreatedBy         int64
}

func (s *DutyStore) Create(p CreateDutyParams) (*model.Duty, error) {
	var deadline sql.NullTime
	if p.Deadline != nil {
		deadline = sql.NullTime{Time: p.Deadline.UTC(), Valid: true}
	}

	result, err := s.db.Exec(
		`INSERT INTO duties (scope_id, title, description, priority, status, expense_limit_cents, deadline, location, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ScopeID, p.Title, p.Description, p.Priority, model.DutyPending,
		p.ExpenseLimitCents, deadline, p.Location, p.CreatedBy,
	)
	if err != nil {
		return nil, fmt.Errorf("insert duty: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(id)
}

func (s *DutyStore) GetByID(id int64) (*model.Duty, error) {
	row := s.db.QueryRow(`SELECT `+dutyCols+` FROM duties WHERE id = ?`, id)
	d, err := scanDuty(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get duty: %w", err)
	}
	return d, nil
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	Status     model.DutyStatus
	AssigneeID int64
}

func (s *DutyStore) List(scopeID int64, f ListFilter) ([]model.Duty, error) {
	query := `SELECT ` + dutyCols + ` FROM duties WHERE scope_id = ?`
	args := []any{scopeID}

	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.AssigneeID != 0 {
		query += ` AND id IN (SELECT duty_id FROM assignments WHERE user_id = ?)`
		args = append(args, f.AssigneeID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list duties: %w", err)
	}
	defer rows.Close()

	var duties []model.Duty
	for rows.Next() {
		d, err := scanDuty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan duty: %w", err)
		}
		duties = append(duties, *d)
	}
	return duties, rows.Err()
}

type UpdateDutyParams struct {
	Title             string
	Description       string
	Priority          model.Priority
	ExpenseLimitCents int64
	Deadline          *time.Time
	Location          string
}

func (s *DutyStore) Update(id int64, p UpdateDutyParams) (*model.Duty, error) {
	var deadline sql.NullTime
	if p.Deadline != nil {
		deadline = sql.NullTime{Time: p.Deadline.UTC(), Valid: true}
	}

	_, err := s.db.Exec(
		`UPDATE duties SET title = ?, description = ?, priority = ?, expense_limit_cents = ?, deadline = ?, location = ?, updated_at = ? WHERE id = ?`,
		p.Title, p.Description, p.Priority, p.ExpenseLimitCents, deadline, p.Location, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("update duty: %w", err)
	}
	return s.GetByID(id)
}

// Delete removes the duty; assignments, receipts, votes, and audit entries
// cascade via foreign keys.
func (s *DutyStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM duties WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete duty: %w", err)
	}
	return nil
}

// TransitionStatus atomically moves the duty from one status to another and
// appends the audit entry in the same transaction. The WHERE clause on the
// current status is the compare-and-swap that serializes concurrent
// transitions: the loser of a race gets a store_conflict fault and the row
// is untouched.
func (s *DutyStore) TransitionStatus(dutyID int64, from, to model.DutyStatus, actorID int64, reason string) (*model.Duty, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`UPDATE duties SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), dutyID, from,
	)
	if err != nil {
		return nil, fmt.Errorf("update duty status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, fault.Newf(fault.StoreConflict, "duty %d is no longer %s", dutyID, from)
	}

	if _, err := tx.Exec(
		`INSERT INTO audit_log (duty_id, from_status, to_status, actor_id, reason) VALUES (?, ?, ?, ?, ?)`,
		dutyID, from, to, actorID, reason,
	); err != nil {
		return nil, fmt.Errorf("insert audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transition: %w", err)
	}
	return s.GetByID(dutyID)
}

// AppendAudit records an administrative action that did not change the
// status, such as a terminal claim override. Status transitions write their
// own entries inside TransitionStatus.
func (s *DutyStore) AppendAudit(dutyID int64, status model.DutyStatus, actorID int64, reason string) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_log (duty_id, from_status, to_status, actor_id, reason) VALUES (?, ?, ?, ?, ?)`,
		dutyID, status, status, actorID, reason,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func scanAuditEntry(scanner interface{ Scan(...any) error }) (*model.AuditEntry, error) {
	var e model.AuditEntry
	err := scanner.Scan(&e.ID, &e.DutyID, &e.FromStatus, &e.ToStatus, &e.ActorID, &e.Reason, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

const auditCols = `id, duty_id, from_status, to_status, actor_id, reason, created_at`

func (s *DutyStore) ListAudit(dutyID int64) ([]model.AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT `+auditCols+` FROM audit_log WHERE duty_id = ? ORDER BY id ASC`,
		dutyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}
