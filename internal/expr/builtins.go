package expr

import (
	"fmt"
	"math"
	"sort"
)

// function is a whitelisted math builtin.
// maxArgs of -1 means variadic.
type function struct {
	minArgs int
	maxArgs int
	call    func(args []float64) float64
}

func (f function) arity() string {
	switch {
	case f.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", f.minArgs)
	case f.minArgs == f.maxArgs:
		return fmt.Sprintf("%d argument(s)", f.minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", f.minArgs, f.maxArgs)
	}
}

func unary(fn func(float64) float64) function {
	return function{minArgs: 1, maxArgs: 1, call: func(a []float64) float64 { return fn(a[0]) }}
}

func binary(fn func(float64, float64) float64) function {
	return function{minArgs: 2, maxArgs: 2, call: func(a []float64) float64 { return fn(a[0], a[1]) }}
}

// functions is the closed set of callable names.
var functions = map[string]function{
	"sqrt":  unary(math.Sqrt),
	"abs":   unary(math.Abs),
	"floor": unary(math.Floor),
	"ceil":  unary(math.Ceil),
	"trunc": unary(math.Trunc),
	"exp":   unary(math.Exp),
	"ln":    unary(math.Log),
	"log":   unary(math.Log),
	"log10": unary(math.Log10),
	"log2":  unary(math.Log2),
	"sin":   unary(math.Sin),
	"cos":   unary(math.Cos),
	"tan":   unary(math.Tan),
	"asin":  unary(math.Asin),
	"acos":  unary(math.Acos),
	"atan":  unary(math.Atan),
	"sign":  unary(sign),
	"pow":   binary(math.Pow),
	"atan2": binary(math.Atan2),
	"hypot": binary(math.Hypot),
	"min": {minArgs: 1, maxArgs: -1, call: func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Min(m, v)
		}
		return m
	}},
	"max": {minArgs: 1, maxArgs: -1, call: func(a []float64) float64 {
		m := a[0]
		for _, v := range a[1:] {
			m = math.Max(m, v)
		}
		return m
	}},
	"round": {minArgs: 1, maxArgs: 2, call: func(a []float64) float64 {
		digits := 0
		if len(a) == 2 {
			digits = int(a[1])
		}
		return roundTo(a[0], digits)
	}},
}

// constants are recognized before bindings are consulted.
var constants = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}

func sign(x float64) float64 {
	switch {
	case math.IsNaN(x):
		return x
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

// IsBuiltin reports whether name is a reserved function or constant name.
// Attributes with these names cannot be referenced from an expression.
func IsBuiltin(name string) bool {
	if _, ok := functions[name]; ok {
		return true
	}
	_, ok := constants[name]
	return ok
}

// Builtins returns the sorted list of reserved function and constant names.
func Builtins() []string {
	names := make([]string, 0, len(functions)+len(constants))
	for name := range functions {
		names = append(names, name)
	}
	for name := range constants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// roundTo rounds x half away from zero to the given number of decimals.
// Negative digits round to tens, hundreds, and so on.
// Values too large to scale are returned unchanged.
func roundTo(x float64, digits int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	scale := math.Pow10(digits)
	scaled := x * scale
	if math.IsInf(scaled, 0) || math.IsInf(scale, 0) || scale == 0 {
		return x
	}
	r := math.Round(scaled) / scale
	if r == 0 {
		return 0 // normalize -0
	}
	return r
}
