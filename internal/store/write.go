package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/formulary/internal/ir"
)

// Insert stores a new record and returns its id.
// An empty rec.ID is replaced with a generated one.
//
// The record's Attributes are serialized to canonical JSON.
func (s *Store) Insert(ctx context.Context, rec ir.Record) (string, error) {
	id := rec.ID
	if id == "" {
		id = s.ids.Generate()
	}

	attrsJSON, err := marshalAttributes(rec.Attributes)
	if err != nil {
		return "", fmt.Errorf("insert record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, attributes)
		VALUES (?, ?)
	`, id, attrsJSON)
	if err != nil {
		return "", fmt.Errorf("insert record %s: %w", id, err)
	}

	return id, nil
}

// UpdateFields merges fields into the stored attributes of record id.
// Keys not present in fields are left unchanged. Null values are stored as
// explicit nulls so a failed derived field replaces any previous value.
//
// The read-merge-write runs in one transaction. Returns ErrNotFound if the
// record does not exist.
func (s *Store) UpdateFields(ctx context.Context, id string, fields ir.Attributes) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update record %s: begin tx: %w", id, err)
	}
	defer tx.Rollback() // No-op if committed

	var attrsJSON string
	err = tx.QueryRowContext(ctx, `SELECT attributes FROM records WHERE id = ?`, id).Scan(&attrsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("update record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update record %s: read: %w", id, err)
	}

	current, err := unmarshalAttributes(attrsJSON)
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}

	merged, err := marshalAttributes(current.Merge(fields))
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE records SET attributes = ? WHERE id = ?`, merged, id); err != nil {
		return fmt.Errorf("update record %s: write: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update record %s: commit: %w", id, err)
	}
	return nil
}

// Delete removes a record. Returns ErrNotFound if it does not exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return requireAffected(res, "delete record", id)
}

// InsertFormula stores a new formula definition and returns it with ID and
// Seq filled in. An empty f.ID is replaced with a generated one.
// Seq is assigned by the database and defines registry order.
func (s *Store) InsertFormula(ctx context.Context, f ir.FormulaDefinition) (ir.FormulaDefinition, error) {
	if f.ID == "" {
		f.ID = s.ids.Generate()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO formulas (id, field_name, expression, units, is_active)
		VALUES (?, ?, ?, ?, ?)
	`, f.ID, f.FieldName, f.Expression, f.Units, boolToInt(f.IsActive))
	if err != nil {
		return ir.FormulaDefinition{}, fmt.Errorf("insert formula %s: %w", f.ID, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return ir.FormulaDefinition{}, fmt.Errorf("insert formula %s: seq: %w", f.ID, err)
	}
	f.Seq = seq

	return f, nil
}

// UpdateFormulaExpression replaces the expression text of a formula.
// Field name, units, active flag, and order are unchanged.
// Returns ErrNotFound if the formula does not exist.
func (s *Store) UpdateFormulaExpression(ctx context.Context, id, expression string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE formulas SET expression = ? WHERE id = ?`, expression, id)
	if err != nil {
		return fmt.Errorf("update formula %s: %w", id, err)
	}
	return requireAffected(res, "update formula", id)
}

// SetFormulaActive sets the active flag of a formula.
// Returns ErrNotFound if the formula does not exist.
func (s *Store) SetFormulaActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE formulas SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("set formula active %s: %w", id, err)
	}
	return requireAffected(res, "set formula active", id)
}

// DeleteFormula removes a formula definition.
// Persisted derived values produced by it are left in place.
// Returns ErrNotFound if the formula does not exist.
func (s *Store) DeleteFormula(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM formulas WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete formula %s: %w", id, err)
	}
	return requireAffected(res, "delete formula", id)
}

// requireAffected maps a zero-row result to ErrNotFound.
func requireAffected(res sql.Result, op, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: rows affected: %w", op, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
