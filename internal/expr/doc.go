// Package expr parses and evaluates formula expressions.
//
// An expression is a single arithmetic term over record attribute names:
//
//	peak_torque_nm / weight_kg
//	2 * pi * rated_speed_rpm / 60 * rated_torque_nm / 1000
//	sqrt(pow(rated_torque_nm, 2))
//
// The grammar is a fixed whitelist: numeric literals, identifiers, the binary
// operators + - * / % ^ (and ** as a synonym for ^), unary minus and plus,
// parentheses, and calls to a closed set of math builtins. There are no
// statements, assignments, member accesses, or host callbacks; evaluating an
// expression can only read attribute values and produce a float64.
//
// # Identifier resolution
//
// Builtin constants (pi, e) and function names are recognized first. Every
// other identifier is looked up by exact name in the bindings; a missing name
// fails with UnknownIdentifier rather than evaluating to zero.
//
// # Coercion
//
// Bound values are coerced permissively to keep parity with the catalog's
// historical behavior:
//
//   - Number: used as-is
//   - Bool: true is 1, false is 0
//   - Null (absent): 0
//   - Text: trimmed numeric text is parsed; empty text is 0; anything else
//     fails with NonNumeric
//
// Treating absent values as 0 can silently mask missing data: a formula like
// "peak_torque_nm / weight_kg" on a record without weight_kg fails with
// NonFinite (division by zero) but "a + b" quietly yields a.
//
// # Results
//
// NaN and infinite results fail with NonFinite. Finite results are rounded half
// away from zero to the evaluator's precision (2 decimals by default).
package expr
