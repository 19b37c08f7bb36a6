package engine

import (
	"github.com/roach88/formulary/internal/expr"
	"github.com/roach88/formulary/internal/ir"
)

// Program is a compiled formula expression.
type Program interface {
	Eval(bindings ir.Attributes) (float64, error)
}

// Evaluator compiles formula expressions.
// The pipeline depends on this interface so tests can inject failures.
type Evaluator interface {
	Compile(expression string) (Program, error)
}

// exprEvaluator adapts *expr.Evaluator to Evaluator.
type exprEvaluator struct {
	ev *expr.Evaluator
}

// NewEvaluator wraps an expression evaluator for use by the pipeline.
func NewEvaluator(ev *expr.Evaluator) Evaluator {
	return exprEvaluator{ev: ev}
}

// Compile implements Evaluator.
func (e exprEvaluator) Compile(expression string) (Program, error) {
	prog, err := e.ev.Compile(expression)
	if err != nil {
		return nil, err
	}
	return prog, nil
}
