package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/formulary/internal/ir"
)

// DefaultPrecision is the number of decimals results are rounded to.
const DefaultPrecision = 2

// Evaluator compiles and evaluates expressions at a fixed decimal precision.
//
// Thread-safety: an Evaluator and the Programs it compiles are immutable and
// safe for concurrent use.
type Evaluator struct {
	precision int
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPrecision sets the number of decimals results are rounded to.
func WithPrecision(digits int) Option {
	return func(e *Evaluator) {
		e.precision = digits
	}
}

// New creates an Evaluator. Without options it rounds to DefaultPrecision.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{precision: DefaultPrecision}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Precision returns the configured number of decimals.
func (e *Evaluator) Precision() int {
	return e.precision
}

// Compile parses expression into a reusable Program.
// Syntax errors, unknown functions, and bad arities are reported here.
func (e *Evaluator) Compile(expression string) (*Program, error) {
	root, err := parse(expression)
	if err != nil {
		return nil, err
	}
	return &Program{
		src:       expression,
		root:      root,
		idents:    identifiers(root),
		precision: e.precision,
	}, nil
}

// Program is a compiled expression.
type Program struct {
	src       string
	root      node
	idents    []string
	precision int
}

// Identifiers returns the attribute names the expression reads, sorted.
// Builtin constants are excluded.
func (p *Program) Identifiers() []string {
	out := make([]string, len(p.idents))
	copy(out, p.idents)
	return out
}

// Eval evaluates the program against bindings.
// bindings is only read, never modified.
func (p *Program) Eval(bindings ir.Attributes) (float64, error) {
	v, err := p.root.eval(&env{src: p.src, bindings: bindings})
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &EvalError{
			Kind:       NonFinite,
			Expression: p.src,
			Pos:        -1,
			Message:    fmt.Sprintf("result is %v", v),
		}
	}
	return roundTo(v, p.precision), nil
}

// env resolves identifiers during one evaluation.
type env struct {
	src      string
	bindings ir.Attributes
}

func (e *env) lookup(name string, pos int) (float64, error) {
	if c, ok := constants[name]; ok {
		return c, nil
	}
	v, ok := e.bindings[name]
	if !ok {
		return 0, &EvalError{
			Kind:       UnknownIdentifier,
			Expression: e.src,
			Name:       name,
			Pos:        pos,
			Message:    fmt.Sprintf("unknown identifier %q", name),
		}
	}
	f, ok := Coerce(v)
	if !ok {
		return 0, &EvalError{
			Kind:       NonNumeric,
			Expression: e.src,
			Name:       name,
			Pos:        pos,
			Message:    fmt.Sprintf("%q is not numeric: %q", name, ir.String(v)),
		}
	}
	return f, nil
}

// Coerce converts an attribute value to a formula input.
//
// Number is used as-is, Bool maps to 1/0, Null (absent) maps to 0, and Text is
// parsed after trimming whitespace (empty text maps to 0). Returns false for
// text that is not a finite number.
func Coerce(v ir.Value) (float64, bool) {
	switch val := v.(type) {
	case ir.Number:
		return float64(val), true
	case ir.Bool:
		if val {
			return 1, true
		}
		return 0, true
	case ir.Text:
		s := strings.TrimSpace(string(val))
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, true
	}
}
