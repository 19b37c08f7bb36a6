// Package ir provides the value model shared by every formulary package.
//
// This package contains type definitions and serialization only. All other
// internal packages import ir; ir imports nothing internal, so it stays the
// foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Record attributes are scalars only: Null, Text, Number, Bool
//   - Null and a missing key mean the same thing ("absent")
//   - All JSON tags use snake_case
//   - Ordering uses store-assigned sequence numbers, never wall-clock time
package ir
