package compiler

import (
	"fmt"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/formulary/internal/ir"
)

// FormulaSpec is a formula declared in a CUE file.
type FormulaSpec struct {
	FieldName  string    `json:"field_name"`
	Expression string    `json:"expression"`
	Units      string    `json:"units,omitempty"`
	Active     bool      `json:"active"`
	Order      int       `json:"order"`
	Pos        token.Pos `json:"-"`
}

// Definition converts s to a FormulaDefinition without ID or Seq.
func (s FormulaSpec) Definition() ir.FormulaDefinition {
	return ir.FormulaDefinition{
		FieldName:  s.FieldName,
		Expression: s.Expression,
		Units:      s.Units,
		IsActive:   s.Active,
	}
}

// CompileFormula parses a CUE value into a FormulaSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the formula struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`formula: area: { expression: "width * height" }`)
//	spec, err := CompileFormula(v.LookupPath(cue.ParsePath("formula.area")))
//
// The field name comes from the struct label. expression is required;
// units defaults to "", active to true, and order to -1 (declaration order).
func CompileFormula(v cue.Value) (*FormulaSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &FormulaSpec{Active: true, Order: -1, Pos: v.Pos()}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.FieldName = unquoteLabel(labels[len(labels)-1])
	}

	exprVal := v.LookupPath(cue.ParsePath("expression"))
	if !exprVal.Exists() {
		return nil, &CompileError{
			Field:   "expression",
			Message: "expression is required",
			Pos:     v.Pos(),
		}
	}
	expression, err := exprVal.String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Expression = expression

	if unitsVal := v.LookupPath(cue.ParsePath("units")); unitsVal.Exists() {
		units, err := unitsVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Units = units
	}

	if activeVal := v.LookupPath(cue.ParsePath("active")); activeVal.Exists() {
		active, err := activeVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Active = active
	}

	if orderVal := v.LookupPath(cue.ParsePath("order")); orderVal.Exists() {
		order, err := orderVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if order < 0 {
			return nil, &CompileError{
				Field:   "order",
				Message: fmt.Sprintf("order must be non-negative, got %d", order),
				Pos:     orderVal.Pos(),
			}
		}
		spec.Order = int(order)
	}

	return spec, nil
}

// CompileFormulas compiles every field of the top-level "formula" struct of
// v and returns them in evaluation order. Formulas without an explicit order
// take their declaration index; ties keep declaration order.
//
// Returns all compile errors found (does not fail-fast).
func CompileFormulas(v cue.Value) ([]FormulaSpec, []error) {
	formulasVal := v.LookupPath(cue.ParsePath("formula"))
	if !formulasVal.Exists() {
		return nil, nil
	}

	iter, err := formulasVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var specs []FormulaSpec
	var errs []error
	for i := 0; iter.Next(); i++ {
		spec, err := CompileFormula(iter.Value())
		if err != nil {
			errs = append(errs, fmt.Errorf("formula.%s: %w", iter.Selector().String(), err))
			continue
		}
		if spec.Order < 0 {
			spec.Order = i
		}
		specs = append(specs, *spec)
	}

	sort.SliceStable(specs, func(i, j int) bool {
		return specs[i].Order < specs[j].Order
	})
	return specs, errs
}

// unquoteLabel returns the field name for a selector, removing CUE quoting
// from labels such as "größe" that are not CUE identifiers.
func unquoteLabel(sel cue.Selector) string {
	if sel.LabelType() == cue.StringLabel {
		return sel.Unquoted()
	}
	return sel.String()
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
