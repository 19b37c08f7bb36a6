// Package catalog wires the formula registry, the computation pipeline, and
// the bulk coordinator to a record store.
//
// It exposes the two flows that change derived values:
//   - creating a record: derived fields are computed from the submitted
//     attributes and stored with them
//   - changing a formula: the change is saved and every record is recomputed
//
// Deleting a formula does not recompute; values it produced stay on records
// until the field is overwritten.
package catalog
