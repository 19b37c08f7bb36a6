package harness

import "github.com/roach88/formulary/internal/ir"

// StepResult records what one step did.
type StepResult struct {
	Action string `json:"action"`
	Target string `json:"target,omitempty"` // formula id, field, or record id

	// Outcome is ALL_RECOMPUTED, PARTIAL_FAILURE, or UNCHANGED for steps
	// that may recompute; empty otherwise.
	Outcome string              `json:"outcome,omitempty"`
	Report  *ir.RecomputeReport `json:"report,omitempty"`

	// Derived holds the derived values of a created record.
	Derived ir.Attributes `json:"derived,omitempty"`

	// Error is the registry error code (or message) of a rejected step.
	Error string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Steps holds one entry per executed step, in order.
	Steps []StepResult `json:"steps"`

	// Records is the final store contents in insertion order.
	Records []ir.Record `json:"records"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Steps:   []StepResult{},
		Records: []ir.Record{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
