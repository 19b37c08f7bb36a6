package ir

import "errors"

// Record is one catalog entity: a stable identifier plus raw and derived attributes.
// The identifier is owned by the record store and is never rewritten by the engine.
type Record struct {
	ID         string     `json:"id"`
	Attributes Attributes `json:"attributes"`
}

// FormulaDefinition is a named arithmetic expression that computes one derived attribute.
//
// FieldName is not guaranteed unique across definitions; when two active
// definitions share a field name the later one in registry order wins.
type FormulaDefinition struct {
	ID         string `json:"id"`
	FieldName  string `json:"field_name"`
	Expression string `json:"expression"`
	Units      string `json:"units,omitempty"`
	IsActive   bool   `json:"is_active"`
	Seq        int64  `json:"seq"` // Store-assigned creation sequence (registry order)
}

// ActiveOnly returns the active formulas in their original order.
func ActiveOnly(formulas []FormulaDefinition) []FormulaDefinition {
	out := make([]FormulaDefinition, 0, len(formulas))
	for _, f := range formulas {
		if f.IsActive {
			out = append(out, f)
		}
	}
	return out
}

// DerivedFields returns the distinct field names produced by the active formulas,
// in first-appearance order.
func DerivedFields(formulas []FormulaDefinition) []string {
	seen := make(map[string]bool, len(formulas))
	var fields []string
	for _, f := range formulas {
		if !f.IsActive || seen[f.FieldName] {
			continue
		}
		seen[f.FieldName] = true
		fields = append(fields, f.FieldName)
	}
	return fields
}

// RecordFailure describes why one record was not updated during a bulk pass.
type RecordFailure struct {
	RecordID string `json:"record_id"`
	Reason   string `json:"reason"`
}

// RecomputeReport summarizes one bulk recomputation pass.
//
// A pass is best-effort: records in FailedRecordIDs kept their previous
// derived values and may be retried.
type RecomputeReport struct {
	Total           int             `json:"total"`
	Succeeded       int             `json:"succeeded"`
	FailedRecordIDs []string        `json:"failed_record_ids"`
	Failures        []RecordFailure `json:"failures,omitempty"`
	Cancelled       bool            `json:"cancelled,omitempty"`
	Fingerprint     string          `json:"fingerprint,omitempty"` // Formula set the pass applied
}

// OK reports whether every record was updated.
func (r RecomputeReport) OK() bool {
	return len(r.FailedRecordIDs) == 0 && !r.Cancelled
}

// ErrNotFound is returned by record and formula stores when an id does not exist.
// Callers match it with errors.Is.
var ErrNotFound = errors.New("not found")
