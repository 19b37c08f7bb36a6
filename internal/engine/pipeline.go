package engine

import (
	"log/slog"

	"github.com/roach88/formulary/internal/expr"
	"github.com/roach88/formulary/internal/ir"
)

// Pipeline applies an ordered list of formulas to one record's attributes.
//
// Thread-safety: a Pipeline and the Plans it prepares are immutable and
// safe for concurrent use. Each call gets its own computation context.
type Pipeline struct {
	evaluator Evaluator
	logger    *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithEvaluator sets the expression evaluator.
// Defaults to expr.New() at its default precision.
func WithEvaluator(ev Evaluator) PipelineOption {
	return func(p *Pipeline) {
		p.evaluator = ev
	}
}

// WithPipelineLogger sets the logger used for formula failures.
// Defaults to slog.Default().
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a Pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		evaluator: NewEvaluator(expr.New()),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Compute evaluates formulas against attrs and returns the derived fields.
//
// Every active formula contributes its field to the result: a number on
// success, null on failure. attrs is never modified.
func (p *Pipeline) Compute(attrs ir.Attributes, formulas []ir.FormulaDefinition) ir.Attributes {
	return p.Prepare(formulas).Compute(attrs)
}

// ComputeDetailed is Compute plus the per-field failures, in formula order.
func (p *Pipeline) ComputeDetailed(attrs ir.Attributes, formulas []ir.FormulaDefinition) (ir.Attributes, []*FieldError) {
	return p.Prepare(formulas).ComputeDetailed(attrs)
}

// Prepare compiles the active formulas once for repeated use.
// Inactive formulas are dropped. A formula that fails to compile stays in
// the plan and yields its compile error for every record.
func (p *Pipeline) Prepare(formulas []ir.FormulaDefinition) *Plan {
	plan := &Plan{logger: p.logger}
	for _, f := range formulas {
		if !f.IsActive {
			continue
		}
		prog, err := p.evaluator.Compile(f.Expression)
		plan.steps = append(plan.steps, step{def: f, prog: prog, err: err})
	}
	return plan
}

// Plan is an ordered list of compiled formulas.
type Plan struct {
	steps  []step
	logger *slog.Logger
}

type step struct {
	def  ir.FormulaDefinition
	prog Program
	err  error // compile error; prog is nil when set
}

// Formulas returns the active formulas in evaluation order.
func (pl *Plan) Formulas() []ir.FormulaDefinition {
	out := make([]ir.FormulaDefinition, len(pl.steps))
	for i, s := range pl.steps {
		out[i] = s.def
	}
	return out
}

// Fields returns the distinct derived field names in first-appearance order.
func (pl *Plan) Fields() []string {
	return ir.DerivedFields(pl.Formulas())
}

// Compute evaluates the plan against attrs and returns the derived fields.
func (pl *Plan) Compute(attrs ir.Attributes) ir.Attributes {
	out, _ := pl.compute("", attrs)
	return out
}

// ComputeDetailed is Compute plus the per-field failures, in formula order.
func (pl *Plan) ComputeDetailed(attrs ir.Attributes) (ir.Attributes, []*FieldError) {
	return pl.compute("", attrs)
}

// ComputeRecord evaluates the plan against a record. Failure logs carry the record id.
func (pl *Plan) ComputeRecord(rec ir.Record) (ir.Attributes, []*FieldError) {
	return pl.compute(rec.ID, rec.Attributes)
}

func (pl *Plan) compute(recordID string, attrs ir.Attributes) (ir.Attributes, []*FieldError) {
	ctx := attrs.Clone()
	out := make(ir.Attributes, len(pl.steps))
	var failures []*FieldError

	for _, s := range pl.steps {
		err := s.err
		var v float64
		if err == nil {
			v, err = s.prog.Eval(ctx)
		}

		if err != nil {
			// Later formulas see the null that will be stored, not the old value
			out[s.def.FieldName] = ir.Null{}
			ctx[s.def.FieldName] = ir.Null{}
			failures = append(failures, &FieldError{
				FormulaID: s.def.ID,
				FieldName: s.def.FieldName,
				Err:       err,
			})
			pl.logFailure(recordID, s.def, err)
			continue
		}

		out[s.def.FieldName] = ir.Number(v)
		ctx[s.def.FieldName] = ir.Number(v)
	}

	return out, failures
}

func (pl *Plan) logFailure(recordID string, def ir.FormulaDefinition, err error) {
	args := []any{
		"field", def.FieldName,
		"formula_id", def.ID,
		"expression", def.Expression,
		"kind", expr.KindOf(err),
		"error", err,
	}
	if recordID != "" {
		args = append(args, "record_id", recordID)
	}
	pl.logger.Warn("formula evaluation failed", args...)
}
