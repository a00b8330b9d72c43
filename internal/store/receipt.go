package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/callboard/callboard/internal/fault"
	"github.com/callboard/callboard/internal/model"
)

type ReceiptStore struct {
	db *sql.DB
}

func NewReceiptStore(db *sql.DB) *ReceiptStore {
	return &ReceiptStore{db: db}
}

func scanReceipt(scanner interface{ Scan(...any) error }) (*model.Receipt, error) {
	var r model.Receipt
	err := scanner.Scan(
		&r.ID, &r.DutyID, &r.SubmittedBy, &r.AmountCents, &r.Status, &r.Notes,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const receiptCols = `id, duty_id, submitted_by, amount_cents, status, notes, created_at, updated_at`

type CreateReceiptParams struct {
	DutyID      int64
	SubmittedBy int64
	Notes       string
	Items       []model.ReceiptItem
	Evidence    []string
}

// Create inserts the receipt with its items and evidence refs in one
// transaction. AmountCents is computed from the items here so the stored
// total can never drift from the itemization.
func (s *ReceiptStore) Create(p CreateReceiptParams) (*model.Receipt, error) {
	var total int64
	for _, item := range p.Items {
		total += item.AmountCents
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(
		`INSERT INTO receipts (duty_id, submitted_by, amount_cents, status, notes) VALUES (?, ?, ?, ?, ?)`,
		p.DutyID, p.SubmittedBy, total, model.ReceiptPending, p.Notes,
	)
	if err != nil {
		return nil, fmt.Errorf("insert receipt: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	for i, item := range p.Items {
		if _, err := tx.Exec(
			`INSERT INTO receipt_items (receipt_id, description, amount_cents, position) VALUES (?, ?, ?, ?)`,
			id, item.Description, item.AmountCents, i,
		); err != nil {
			return nil, fmt.Errorf("insert receipt item: %w", err)
		}
	}
	for _, ref := range p.Evidence {
		if _, err := tx.Exec(
			`INSERT INTO receipt_evidence (receipt_id, ref) VALUES (?, ?)`,
			id, ref,
		); err != nil {
			return nil, fmt.Errorf("insert receipt evidence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit receipt: %w", err)
	}
	return s.GetByID(id)
}

// GetByID returns the receipt with items and evidence loaded, or (nil, nil)
// if it does not exist.
func (s *ReceiptStore) GetByID(id int64) (*model.Receipt, error) {
	row := s.db.QueryRow(`SELECT `+receiptCols+` FROM receipts WHERE id = ?`, id)
	r, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	if r.Items, err = s.listItems(id); err != nil {
		return nil, err
	}
	if r.Evidence, err = s.listEvidence(id); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *ReceiptStore) listItems(receiptID int64) ([]model.ReceiptItem, error) {
	rows, err := s.db.Query(
		`SELECT id, receipt_id, description, amount_cents, position FROM receipt_items WHERE receipt_id = ? ORDER BY position ASC`,
		receiptID,
	)
	if err != nil {
		return nil, fmt.Errorf("list receipt items: %w", err)
	}
	defer rows.Close()

	var items []model.ReceiptItem
	for rows.Next() {
		var item model.ReceiptItem
		if err := rows.Scan(&item.ID, &item.ReceiptID, &item.Description, &item.AmountCents, &item.Position); err != nil {
			return nil, fmt.Errorf("scan receipt item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *ReceiptStore) listEvidence(receiptID int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT ref FROM receipt_evidence WHERE receipt_id = ? ORDER BY id ASC`, receiptID)
	if err != nil {
		return nil, fmt.Errorf("list receipt evidence: %w", err)
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, fmt.Errorf("scan evidence ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

func (s *ReceiptStore) ListByDuty(dutyID int64) ([]model.Receipt, error) {
	rows, err := s.db.Query(
		`SELECT `+receiptCols+` FROM receipts WHERE duty_id = ? ORDER BY id ASC`,
		dutyID,
	)
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []model.Receipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		receipts = append(receipts, *r)
	}
	return receipts, rows.Err()
}

// Decide moves a pending receipt to approved or rejected. The WHERE clause
// on the pending status makes concurrent decisions race-safe: the second
// caller affects zero rows and gets a store_conflict fault.
func (s *ReceiptStore) Decide(id int64, status model.ReceiptStatus) (*model.Receipt, error) {
	result, err := s.db.Exec(
		`UPDATE receipts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		status, time.Now().UTC(), id, model.ReceiptPending,
	)
	if err != nil {
		return nil, fmt.Errorf("decide receipt: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return nil, fault.Newf(fault.StoreConflict, "receipt %d is no longer pending", id)
	}
	return s.GetByID(id)
}

// Override sets the receipt status unconditionally. Used only for recorded
// administrator overrides of terminal claims.
func (s *ReceiptStore) Override(id int64, status model.ReceiptStatus) (*model.Receipt, error) {
	_, err := s.db.Exec(
		`UPDATE receipts SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("override receipt: %w", err)
	}
	return s.GetByID(id)
}

// ApprovedTotal returns the sum of approved receipt amounts for the duty.
// The duty's remaining budget is expense_limit minus this figure.
func (s *ReceiptStore) ApprovedTotal(dutyID int64) (int64, error) {
	var total int64
	err := s.db.QueryRow(
		`SELECT COALESCE(SUM(amount_cents), 0) FROM receipts WHERE duty_id = ? AND status = ?`,
		dutyID, model.ReceiptApproved,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("approved total: %w", err)
	}
	return total, nil
}

func (s *ReceiptStore) Delete(id int64) error {
	_, err := s.db.Exec(`DELETE FROM receipts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete receipt: %w", err)
	}
	return nil
}
