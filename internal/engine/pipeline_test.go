package engine

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formulary/internal/expr"
	"github.com/roach88/formulary/internal/ir"
	"github.com/roach88/formulary/internal/testutil"
)

func formula(id, field, expression string) ir.FormulaDefinition {
	return ir.FormulaDefinition{ID: id, FieldName: field, Expression: expression, IsActive: true}
}

func newTestPipeline() *Pipeline {
	return NewPipeline(WithPipelineLogger(testutil.DiscardLogger()))
}

func TestCompute_ChainedFormulas(t *testing.T) {
	p := newTestPipeline()

	out := p.Compute(
		ir.Attributes{"width": ir.Number(2), "height": ir.Number(3), "depth": ir.Number(4)},
		[]ir.FormulaDefinition{
			formula("f1", "area", "width*height"),
			formula("f2", "volume", "area*depth"),
		},
	)

	assert.Equal(t, ir.Attributes{"area": ir.Number(6), "volume": ir.Number(24)}, out)
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	p := newTestPipeline()
	attrs := ir.Attributes{"width": ir.Number(2), "height": ir.Number(3)}

	p.Compute(attrs, []ir.FormulaDefinition{formula("f1", "area", "width*height")})

	assert.Equal(t, ir.Attributes{"width": ir.Number(2), "height": ir.Number(3)}, attrs)
}

func TestCompute_FailuresYieldNullAndSiblingsContinue(t *testing.T) {
	p := newTestPipeline()

	out, failures := p.ComputeDetailed(
		ir.Attributes{"a": ir.Number(4), "b": ir.Number(0)},
		[]ir.FormulaDefinition{
			formula("f1", "ratio", "a / b"),
			formula("f2", "missing", "a * nope"),
			formula("f3", "broken", "a +"),
			formula("f4", "double", "a * 2"),
		},
	)

	assert.Equal(t, ir.Attributes{
		"ratio":   ir.Null{},
		"missing": ir.Null{},
		"broken":  ir.Null{},
		"double":  ir.Number(8),
	}, out)

	require.Len(t, failures, 3)
	assert.Equal(t, "ratio", failures[0].FieldName)
	assert.Equal(t, expr.NonFinite, failures[0].Kind())
	assert.Equal(t, expr.UnknownIdentifier, failures[1].Kind())
	assert.Equal(t, expr.Malformed, failures[2].Kind())
	assert.Equal(t, "f3", failures[2].FormulaID)
}

func TestCompute_FailureClearsStoredValueForLaterFormulas(t *testing.T) {
	p := newTestPipeline()
	attrs := ir.Attributes{"x": ir.Number(5)}

	// "x" fails, so the later formula reads the null that replaces it.
	out := p.Compute(attrs, []ir.FormulaDefinition{
		formula("f1", "x", "1 / 0"),
		formula("f2", "y", "x + 1"),
	})

	assert.Equal(t, ir.Attributes{"x": ir.Null{}, "y": ir.Number(1)}, out)
	assert.Equal(t, ir.Attributes{"x": ir.Number(5)}, attrs)
}

func TestCompute_DuplicateFieldLaterWins(t *testing.T) {
	p := newTestPipeline()

	out := p.Compute(nil, []ir.FormulaDefinition{
		formula("f1", "area", "1"),
		formula("f2", "area", "2"),
		formula("f3", "twice", "area * 2"),
	})

	assert.Equal(t, ir.Number(2), out["area"])
	assert.Equal(t, ir.Number(4), out["twice"])
}

func TestCompute_ForwardReferenceSeesStoredValue(t *testing.T) {
	p := newTestPipeline()
	formulas := []ir.FormulaDefinition{
		formula("f1", "volume", "area * depth"),
		formula("f2", "area", "width * height"),
	}

	fresh := p.Compute(ir.Attributes{"width": ir.Number(2), "height": ir.Number(3), "depth": ir.Number(4)}, formulas)
	assert.Equal(t, ir.Null{}, fresh["volume"], "area is not yet computed when volume runs")
	assert.Equal(t, ir.Number(6), fresh["area"])

	stale := p.Compute(ir.Attributes{"width": ir.Number(2), "height": ir.Number(3), "depth": ir.Number(4), "area": ir.Number(1)}, formulas)
	assert.Equal(t, ir.Number(4), stale["volume"])
}

func TestCompute_SkipsInactive(t *testing.T) {
	p := newTestPipeline()
	inactive := formula("f2", "legacy", "1")
	inactive.IsActive = false

	out := p.Compute(nil, []ir.FormulaDefinition{formula("f1", "one", "1"), inactive})

	assert.Equal(t, ir.Attributes{"one": ir.Number(1)}, out)
}

func TestCompute_Deterministic(t *testing.T) {
	p := newTestPipeline()
	attrs := ir.Attributes{"rated_torque_nm": ir.Number(-5), "rpm": ir.Number(3000)}
	formulas := []ir.FormulaDefinition{
		formula("f1", "torque_abs", "sqrt(pow(rated_torque_nm,2))"),
		formula("f2", "power_kw", "2 * pi * rpm / 60 * torque_abs / 1000"),
	}

	first := p.Compute(attrs, formulas)
	second := p.Compute(attrs, formulas)

	assert.Equal(t, first, second)
	assert.Equal(t, ir.Number(5), first["torque_abs"])
	assert.Equal(t, ir.Number(1.57), first["power_kw"])
}

func TestCompute_NoFormulas(t *testing.T) {
	out := newTestPipeline().Compute(ir.Attributes{"a": ir.Number(1)}, nil)
	assert.Empty(t, out)
}

func TestCompute_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	p := NewPipeline(WithPipelineLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	plan := p.Prepare([]ir.FormulaDefinition{formula("f1", "ratio", "a / b")})
	plan.ComputeRecord(ir.Record{ID: "rec-7", Attributes: ir.Attributes{"a": ir.Number(1), "b": ir.Number(0)}})

	logged := buf.String()
	assert.Contains(t, logged, "level=WARN")
	assert.Contains(t, logged, "formula evaluation failed")
	assert.Contains(t, logged, "field=ratio")
	assert.Contains(t, logged, "record_id=rec-7")
	assert.Contains(t, logged, "kind=NON_FINITE")
}

func TestPrepare_CompilesOnce(t *testing.T) {
	ev := &countingEvaluator{inner: NewEvaluator(expr.New())}
	p := NewPipeline(WithEvaluator(ev), WithPipelineLogger(testutil.DiscardLogger()))

	plan := p.Prepare([]ir.FormulaDefinition{formula("f1", "a", "1"), formula("f2", "b", "a + 1")})
	for i := 0; i < 10; i++ {
		plan.Compute(nil)
	}

	assert.Equal(t, 2, ev.compiles)
	assert.Equal(t, []string{"a", "b"}, plan.Fields())
}

func TestPipeline_CustomEvaluator(t *testing.T) {
	boom := errors.New("evaluator offline")
	p := NewPipeline(WithEvaluator(failingEvaluator{err: boom}), WithPipelineLogger(testutil.DiscardLogger()))

	out, failures := p.ComputeDetailed(nil, []ir.FormulaDefinition{formula("f1", "a", "1")})

	assert.Equal(t, ir.Attributes{"a": ir.Null{}}, out)
	require.Len(t, failures, 1)
	assert.ErrorIs(t, failures[0], boom)
	assert.Equal(t, expr.ErrorKind(""), failures[0].Kind())
}

type countingEvaluator struct {
	inner    Evaluator
	compiles int
}

func (c *countingEvaluator) Compile(expression string) (Program, error) {
	c.compiles++
	return c.inner.Compile(expression)
}

type failingEvaluator struct {
	err error
}

func (f failingEvaluator) Compile(string) (Program, error) {
	return nil, f.err
}
