package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formulary/internal/ir"
)

func def(field, expression string) ir.FormulaDefinition {
	return ir.FormulaDefinition{FieldName: field, Expression: expression, IsActive: true}
}

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateValidFormulas(t *testing.T) {
	errs := Validate([]ir.FormulaDefinition{
		def("area", "width * height"),
		def("ratio", "peak_torque_nm / weight_kg"),
	})
	assert.Empty(t, errs)
}

func TestValidateFieldName(t *testing.T) {
	tests := []struct {
		name  string
		field string
		code  string
	}{
		{"empty", "", ErrFieldNameEmpty},
		{"whitespace", "   ", ErrFieldNameEmpty},
		{"hyphen", "rated-power", ErrFieldNameInvalid},
		{"leading digit", "2x", ErrFieldNameInvalid},
		{"function name", "sqrt", ErrFieldShadowsBuiltin},
		{"constant name", "e", ErrFieldShadowsBuiltin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate([]ir.FormulaDefinition{def(tt.field, "1 + 1")})
			require.Len(t, errs, 1)
			assert.Equal(t, tt.code, errs[0].Code)
			assert.Equal(t, LevelError, errs[0].Level)
		})
	}
}

func TestValidateBuiltinFieldListsReservedNames(t *testing.T) {
	errs := Validate([]ir.FormulaDefinition{def("pow", "2")})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "reserved: ")
	assert.Contains(t, errs[0].Message, "hypot")
	assert.Contains(t, errs[0].Message, "pi")
}

func TestValidateExpression(t *testing.T) {
	errs := Validate([]ir.FormulaDefinition{
		def("a", "  "),
		def("b", "1 +"),
		def("c", "unknown_fn(2)"),
	})
	assert.Equal(t, []string{ErrExpressionEmpty, ErrExpressionInvalid, ErrExpressionInvalid}, codes(errs))
	assert.Contains(t, errs[1].Message, "MALFORMED")
	assert.Equal(t, "formula.b.expression", errs[1].Field)
}

func TestValidateDuplicateActiveFieldIsWarning(t *testing.T) {
	first := def("area", "width * height")
	first.ID = "f1"
	second := def("area", "w * h")
	second.ID = "f2"

	errs := Validate([]ir.FormulaDefinition{first, second})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateField, errs[0].Code)
	assert.True(t, errs[0].IsWarning())
	assert.Equal(t, "formula.f2.field_name", errs[0].Field)
	assert.Contains(t, errs[0].Message, "formula.f1")
	assert.False(t, HasErrors(errs))
}

func TestValidateInactiveDuplicateIgnored(t *testing.T) {
	inactive := def("area", "w * h")
	inactive.IsActive = false

	errs := Validate([]ir.FormulaDefinition{def("area", "width * height"), inactive})
	assert.Empty(t, errs)
}

func TestValidateCollectsAll(t *testing.T) {
	errs := Validate([]ir.FormulaDefinition{
		def("", ""),
		def("pi", "(1"),
	})
	assert.Equal(t, []string{ErrFieldNameEmpty, ErrExpressionEmpty, ErrFieldShadowsBuiltin, ErrExpressionInvalid}, codes(errs))
	assert.True(t, HasErrors(errs))
}

func TestValidationErrorMessage(t *testing.T) {
	e := ValidationError{Field: "formula.a.expression", Message: "expression is required", Code: ErrExpressionEmpty}
	assert.Equal(t, "[E203] formula.a.expression: expression is required", e.Error())

	e.Line = 4
	assert.Equal(t, "[E203] line 4: formula.a.expression: expression is required", e.Error())
}
