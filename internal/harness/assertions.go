package harness

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/formulary/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Record   *ir.Record
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)

	if e.Record != nil {
		fmt.Fprintf(&buf, "\n\nRecord %s:\n", e.Record.ID)
		for _, key := range e.Record.Attributes.SortedKeys() {
			fmt.Fprintf(&buf, "  %s = %s\n", key, ir.String(e.Record.Attributes[key]))
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the final records and
// active formulas. Returns one message per failed assertion.
func EvaluateAssertions(records []ir.Record, active []ir.FormulaDefinition, assertions []Assertion) []string {
	byID := make(map[string]ir.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertRecordFields:
			err = assertRecordFields(byID, a)
		case AssertMissingFields:
			err = assertMissingFields(byID, a)
		case AssertRecordCount:
			err = assertRecordCount(records, a)
		case AssertActiveFields:
			err = assertActiveFields(active, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertRecordFields checks the expected attributes of one record (subset match).
func assertRecordFields(byID map[string]ir.Record, a Assertion) error {
	rec, ok := byID[a.Record]
	if !ok {
		return &AssertionError{
			Type:     AssertRecordFields,
			Expected: fmt.Sprintf("record %s", a.Record),
			Actual:   "record not found",
		}
	}

	if mismatches := matchAttributes("record "+a.Record, rec.Attributes, a.Expect); len(mismatches) > 0 {
		return &AssertionError{
			Type:     AssertRecordFields,
			Expected: formatExpected(a.Expect),
			Actual:   strings.Join(mismatches, "; "),
			Record:   &rec,
		}
	}
	return nil
}

// assertMissingFields checks that the named attributes are absent.
// A stored null counts as present.
func assertMissingFields(byID map[string]ir.Record, a Assertion) error {
	rec, ok := byID[a.Record]
	if !ok {
		return &AssertionError{
			Type:     AssertMissingFields,
			Expected: fmt.Sprintf("record %s", a.Record),
			Actual:   "record not found",
		}
	}

	var present []string
	for _, field := range a.Fields {
		if _, ok := rec.Attributes[field]; ok {
			present = append(present, field)
		}
	}
	if len(present) > 0 {
		return &AssertionError{
			Type:     AssertMissingFields,
			Expected: fmt.Sprintf("fields %v absent", a.Fields),
			Actual:   fmt.Sprintf("present: %v", present),
			Record:   &rec,
		}
	}
	return nil
}

// assertRecordCount checks the number of records.
func assertRecordCount(records []ir.Record, a Assertion) error {
	if len(records) != *a.Count {
		return &AssertionError{
			Type:     AssertRecordCount,
			Expected: fmt.Sprintf("%d records", *a.Count),
			Actual:   fmt.Sprintf("%d records", len(records)),
		}
	}
	return nil
}

// assertActiveFields checks the derived fields of the active formulas, in order.
func assertActiveFields(active []ir.FormulaDefinition, a Assertion) error {
	got := ir.DerivedFields(active)
	if got == nil {
		got = []string{}
	}
	if !slices.Equal(got, a.Fields) {
		return &AssertionError{
			Type:     AssertActiveFields,
			Expected: fmt.Sprintf("%v", a.Fields),
			Actual:   fmt.Sprintf("%v", got),
		}
	}
	return nil
}

// matchAttributes compares actual against expected (subset match) and
// returns one message per mismatch, in key order.
func matchAttributes(label string, actual ir.Attributes, expected map[string]any) []string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []string
	for _, key := range keys {
		want, err := ir.ValueOf(expected[key])
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s.%s: invalid expected value: %v", label, key, err))
			continue
		}
		got, ok := actual[key]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s.%s: expected %s, field missing", label, key, ir.String(want)))
			continue
		}
		if !ir.Equal(got, want) {
			errs = append(errs, fmt.Sprintf("%s.%s: expected %s, got %s", label, key, ir.String(want), ir.String(got)))
		}
	}
	return errs
}

func formatExpected(expected map[string]any) string {
	keys := make([]string, 0, len(expected))
	for k := range expected {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, expected[k]))
	}
	return strings.Join(parts, " ")
}
