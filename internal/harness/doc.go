// Package harness runs formulary scenarios: scripted sequences of formula
// and record operations checked against assertions and golden snapshots.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: chained_formulas
//	description: "volume reads area computed earlier in the same pass"
//	precision: 2            # optional, defaults to 2
//	duplicate_check: false  # optional
//	records:
//	  - id: r1
//	    attributes: { width: 2, height: 3, depth: 4 }
//	steps:
//	  - action: add_formula
//	    id: f-area
//	    field: area
//	    expression: "width * height"
//	    expect:
//	      outcome: ALL_RECOMPUTED
//	      total: 1
//	  - action: create_record
//	    id: r2
//	    attributes: { width: 1, height: 5 }
//	    expect:
//	      derived: { area: 5 }
//	assertions:
//	  - type: record_fields
//	    record: r1
//	    expect: { area: 6 }
//
// # Step Actions
//
//   - add_formula: field, expression, optional id, units, active
//   - update_formula: id, expression
//   - set_active: id, active
//   - delete_formula: id
//   - create_record: attributes, optional id
//   - recompute: optional ids to recompute only those records
//
// A step's expect clause checks the recompute report (outcome, total,
// succeeded, failed), the derived values of a created record, or the
// registry error code (error) when the step must be rejected.
//
// # Assertion Types
//
//   - record_fields: subset match on one record's attributes (null matches a stored null)
//   - missing_fields: the named attributes are absent from the record
//   - record_count: number of records in the store
//   - active_fields: derived field names of the active formulas, in registry order
//
// # Deterministic Testing
//
// Each scenario runs against a fresh in-memory SQLite store with sequential
// ids ("id-1", "id-2", ...) and a single recompute worker, so the final
// snapshot is byte-identical across runs and can be compared to a golden file.
package harness
