// Package store provides SQLite-backed storage for catalog records and formulas.
//
// Two tables back the engine:
//   - records: one row per catalog record, attributes as canonical JSON
//   - formulas: formula definitions in creation order
//
// # Ordering
//
// Both tables carry an AUTOINCREMENT seq column. Every listing is
// ORDER BY seq ASC, so records and formulas come back in insertion order
// regardless of wall time. Formula seq is the registry order the
// computation pipeline runs in.
//
// # Attributes
//
// Attribute maps are stored as canonical JSON (see ir.MarshalCanonical).
// Explicit nulls are kept: a derived field whose formula failed is stored
// as null rather than removed, so a stale value never survives a recompute.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// A single open connection serializes writers, so UpdateFields is safe to
// call from the bulk recompute worker pool.
package store
