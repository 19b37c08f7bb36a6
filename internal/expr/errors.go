package expr

import (
	"errors"
	"fmt"
)

// ErrorKind categorizes evaluation failures.
// All kinds are recoverable: callers treat the derived attribute as unset.
type ErrorKind string

const (
	// Malformed indicates a syntax error, a bad builtin call, or an over-limit expression.
	Malformed ErrorKind = "MALFORMED"

	// UnknownIdentifier indicates a name that is neither a builtin nor bound.
	UnknownIdentifier ErrorKind = "UNKNOWN_IDENTIFIER"

	// NonFinite indicates a NaN or infinite result (e.g. division by zero).
	NonFinite ErrorKind = "NON_FINITE"

	// NonNumeric indicates a bound text value that does not parse as a number.
	NonNumeric ErrorKind = "NON_NUMERIC"
)

// EvalError describes why an expression could not produce a value.
type EvalError struct {
	// Kind identifies the error category.
	Kind ErrorKind

	// Expression is the source text being evaluated.
	Expression string

	// Name is the offending identifier (UnknownIdentifier, NonNumeric).
	Name string

	// Pos is the byte offset in Expression, or -1 when not applicable.
	Pos int

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *EvalError) Error() string {
	if e.Pos >= 0 {
		return fmt.Sprintf("%s: %s (at offset %d in %q)", e.Kind, e.Message, e.Pos, e.Expression)
	}
	return fmt.Sprintf("%s: %s (in %q)", e.Kind, e.Message, e.Expression)
}

// IsMalformed returns true if err is a Malformed evaluation error.
// Uses errors.As to handle wrapped errors.
func IsMalformed(err error) bool {
	return kindOf(err) == Malformed
}

// IsUnknownIdentifier returns true if err is an UnknownIdentifier evaluation error.
func IsUnknownIdentifier(err error) bool {
	return kindOf(err) == UnknownIdentifier
}

// IsNonFinite returns true if err is a NonFinite evaluation error.
func IsNonFinite(err error) bool {
	return kindOf(err) == NonFinite
}

// IsNonNumeric returns true if err is a NonNumeric evaluation error.
func IsNonNumeric(err error) bool {
	return kindOf(err) == NonNumeric
}

// KindOf returns the ErrorKind of err, or "" if err is not an EvalError.
func KindOf(err error) ErrorKind {
	return kindOf(err)
}

func kindOf(err error) ErrorKind {
	var ee *EvalError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

func malformed(src string, pos int, format string, args ...any) *EvalError {
	return &EvalError{
		Kind:       Malformed,
		Expression: src,
		Pos:        pos,
		Message:    fmt.Sprintf(format, args...),
	}
}
