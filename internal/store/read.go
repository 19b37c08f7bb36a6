package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/formulary/internal/ir"
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ListAll returns every record in insertion order.
//
// Returns an empty slice (not nil) if the table is empty.
func (s *Store) ListAll(ctx context.Context) ([]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, attributes
		FROM records
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := []ir.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	return records, nil
}

// Get retrieves a single record by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (ir.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, attributes
		FROM records
		WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, fmt.Errorf("get record %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.Record{}, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

// GetFormula retrieves a formula definition by id.
// Returns ErrNotFound if it does not exist.
func (s *Store) GetFormula(ctx context.Context, id string) (ir.FormulaDefinition, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, id, field_name, expression, units, is_active
		FROM formulas
		WHERE id = ?
	`, id)

	f, err := scanFormula(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.FormulaDefinition{}, fmt.Errorf("get formula %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return ir.FormulaDefinition{}, fmt.Errorf("get formula %s: %w", id, err)
	}
	return f, nil
}

// ListFormulas returns formula definitions in creation order (seq ASC).
// With activeOnly set, inactive formulas are omitted.
//
// Returns an empty slice (not nil) if no formulas match.
func (s *Store) ListFormulas(ctx context.Context, activeOnly bool) ([]ir.FormulaDefinition, error) {
	query := `
		SELECT seq, id, field_name, expression, units, is_active
		FROM formulas
		ORDER BY seq ASC
	`
	if activeOnly {
		query = `
		SELECT seq, id, field_name, expression, units, is_active
		FROM formulas
		WHERE is_active = 1
		ORDER BY seq ASC
	`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query formulas: %w", err)
	}
	defer rows.Close()

	formulas := []ir.FormulaDefinition{}
	for rows.Next() {
		f, err := scanFormula(rows)
		if err != nil {
			return nil, fmt.Errorf("scan formula: %w", err)
		}
		formulas = append(formulas, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate formulas: %w", err)
	}

	return formulas, nil
}

// scanRecord scans one row into a Record.
func scanRecord(row rowScanner) (ir.Record, error) {
	var rec ir.Record
	var attrsJSON string

	if err := row.Scan(&rec.ID, &attrsJSON); err != nil {
		return ir.Record{}, err
	}

	attrs, err := unmarshalAttributes(attrsJSON)
	if err != nil {
		return ir.Record{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.Attributes = attrs

	return rec, nil
}

// scanFormula scans one row into a FormulaDefinition.
func scanFormula(row rowScanner) (ir.FormulaDefinition, error) {
	var f ir.FormulaDefinition
	var active int

	if err := row.Scan(&f.Seq, &f.ID, &f.FieldName, &f.Expression, &f.Units, &active); err != nil {
		return ir.FormulaDefinition{}, err
	}
	f.IsActive = active == 1

	return f, nil
}
