// Package engine computes derived attributes and keeps persisted records
// consistent with the active formula set.
//
// ARCHITECTURE:
//
// Pipeline (one record, synchronous):
// 1. Clone the record's attributes into a private computation context
// 2. Apply active formulas strictly in registry order
// 3. A success writes the value to the output and to the context, so later
// formulas can read it
// 4. A failure writes null to both the output and the context,
// logs a warning, and the pass continues
//
// Coordinator (all records, bounded concurrency):
// 1. Prepare the formula list once; it is held fixed for the whole pass
// 2. Run the pipeline per record on a bounded worker pool
// 3. Write only the derived fields, each write under its own timeout
// 4. Aggregate per-record failures into an ir.RecomputeReport
//
// ORDERING:
//
// Formulas are never reordered. A formula that reads a field produced by a
// later formula sees the record's stored value (or absent) instead of the
// freshly computed one. See compiler.AnalyzeDependencies for a check.
//
// FAILURE MODEL:
//
// Evaluation failures are per field and never escape a record. Write
// failures are per record and never abort the batch. There is no
// cross-record atomicity: a failed record keeps its previous derived
// values and can be retried.
package engine
