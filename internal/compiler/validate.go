package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/formulary/internal/expr"
	"github.com/roach88/formulary/internal/ir"
)

// Validation error codes (E200-E299)
const (
	ErrFieldNameEmpty      = "E201" // field name is required
	ErrFieldNameInvalid    = "E202" // field name is not an identifier
	ErrExpressionEmpty     = "E203" // expression is required
	ErrExpressionInvalid   = "E204" // expression does not parse
	ErrDuplicateField      = "E205" // two active formulas write the same field
	ErrFieldShadowsBuiltin = "E206" // field name is a function or constant
)

// Validation levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
)

// ValidationError represents a formula validation problem.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Level   string `json:"level"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// IsWarning reports whether the problem is advisory.
func (e ValidationError) IsWarning() bool {
	return e.Level == LevelWarning
}

// HasErrors reports whether any problem in errs is error-level.
func HasErrors(errs []ValidationError) bool {
	for _, e := range errs {
		if !e.IsWarning() {
			return true
		}
	}
	return false
}

// Validate checks formulas against the registry rules.
// Returns all problems found (does not fail-fast), in formula order.
// E205 is reported at warning level: duplicates are legal and the later
// formula wins.
func Validate(formulas []ir.FormulaDefinition) []ValidationError {
	var errs []ValidationError
	ev := expr.New()
	activeFields := make(map[string]int)

	for i, f := range formulas {
		path := formulaPath(i, f)

		// E201/E202/E206: field name
		name := strings.TrimSpace(f.FieldName)
		switch {
		case name == "":
			errs = append(errs, ValidationError{
				Field:   path + ".field_name",
				Message: "field name is required",
				Code:    ErrFieldNameEmpty,
				Level:   LevelError,
			})
		case !expr.IsIdentifier(name):
			errs = append(errs, ValidationError{
				Field:   path + ".field_name",
				Message: fmt.Sprintf("invalid field name %q, must be a letter or underscore followed by letters, digits, or underscores", f.FieldName),
				Code:    ErrFieldNameInvalid,
				Level:   LevelError,
			})
		case expr.IsBuiltin(name):
			errs = append(errs, ValidationError{
				Field:   path + ".field_name",
				Message: fmt.Sprintf("field name %q is a builtin and could never be referenced (reserved: %s)", name, strings.Join(expr.Builtins(), ", ")),
				Code:    ErrFieldShadowsBuiltin,
				Level:   LevelError,
			})
		}

		// E203/E204: expression
		if strings.TrimSpace(f.Expression) == "" {
			errs = append(errs, ValidationError{
				Field:   path + ".expression",
				Message: "expression is required",
				Code:    ErrExpressionEmpty,
				Level:   LevelError,
			})
		} else if _, err := ev.Compile(f.Expression); err != nil {
			errs = append(errs, ValidationError{
				Field:   path + ".expression",
				Message: err.Error(),
				Code:    ErrExpressionInvalid,
				Level:   LevelError,
			})
		}

		// E205: duplicate active field
		if f.IsActive && name != "" {
			if first, ok := activeFields[name]; ok {
				errs = append(errs, ValidationError{
					Field:   path + ".field_name",
					Message: fmt.Sprintf("field %q is also written by %s; the later formula wins", name, formulaPath(first, formulas[first])),
					Code:    ErrDuplicateField,
					Level:   LevelWarning,
				})
			} else {
				activeFields[name] = i
			}
		}
	}

	return errs
}

// formulaPath names a formula in messages: formula.<id> when it has one,
// otherwise its position.
func formulaPath(i int, f ir.FormulaDefinition) string {
	if f.ID != "" {
		return "formula." + f.ID
	}
	if f.FieldName != "" {
		return "formula." + f.FieldName
	}
	return fmt.Sprintf("formulas[%d]", i)
}
