// Package registry is the source of truth for formula definitions.
//
// The registry validates and stores definitions; it never parses or
// evaluates expressions. Active formulas are returned in creation order,
// which is the order the computation pipeline applies them in. A formula
// may read a field produced by an earlier formula but not a later one.
//
// Duplicate field names are accepted unless WithDuplicateCheck is set.
// When two active formulas share a field name, the later one wins.
package registry
