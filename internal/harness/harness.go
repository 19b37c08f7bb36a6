package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/formulary/internal/catalog"
	"github.com/roach88/formulary/internal/engine"
	"github.com/roach88/formulary/internal/expr"
	"github.com/roach88/formulary/internal/ir"
	"github.com/roach88/formulary/internal/registry"
	"github.com/roach88/formulary/internal/store"
	"github.com/roach88/formulary/internal/testutil"
)

// Harness is the scenario execution engine.
// It drives a Catalog over a private in-memory store.
type Harness struct {
	store   *store.Store
	catalog *catalog.Catalog
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database with sequential ids
// 2. Insert seed records
// 3. Execute steps, checking each expect clause
// 4. Snapshot the final records and evaluate assertions
//
// Expectation and assertion failures are reported in the Result. The error
// is reserved for infrastructure failures (store, seed records).
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(store.MemoryPath, store.WithIDGenerator(testutil.NewSequentialIDs("id")))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := newHarness(st, scenario)

	if err := h.seed(ctx, scenario.Records); err != nil {
		return nil, fmt.Errorf("failed to seed records: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, errs := h.executeStep(ctx, step)
		result.Steps = append(result.Steps, sr)
		for _, msg := range errs {
			result.AddError(fmt.Sprintf("steps[%d] %s: %s", i, step.Action, msg))
		}
	}

	records, err := st.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	result.Records = records

	formulas, err := h.catalog.Registry().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list formulas: %w", err)
	}

	for _, msg := range EvaluateAssertions(records, formulas, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) *Harness {
	logger := testutil.DiscardLogger()

	precision := expr.DefaultPrecision
	if scenario.Precision != nil {
		precision = *scenario.Precision
	}

	var regOpts []registry.Option
	regOpts = append(regOpts, registry.WithLogger(logger))
	if scenario.DuplicateCheck {
		regOpts = append(regOpts, registry.WithDuplicateCheck())
	}

	pipeline := engine.NewPipeline(
		engine.WithEvaluator(engine.NewEvaluator(expr.New(expr.WithPrecision(precision)))),
		engine.WithPipelineLogger(logger),
	)
	coordinator := engine.NewCoordinator(st,
		engine.WithPipeline(pipeline),
		engine.WithConcurrency(1),
		engine.WithLogger(logger),
	)

	return &Harness{
		store: st,
		catalog: catalog.New(registry.New(st, regOpts...), st,
			catalog.WithPipeline(pipeline),
			catalog.WithCoordinator(coordinator),
			catalog.WithLogger(logger),
		),
		logger: logger,
	}
}

// seed inserts the scenario's initial records as given.
func (h *Harness) seed(ctx context.Context, records []RecordSeed) error {
	for i, rec := range records {
		attrs, err := ir.NewAttributes(rec.Attributes)
		if err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
		if _, err := h.store.Insert(ctx, ir.Record{ID: rec.ID, Attributes: attrs}); err != nil {
			return fmt.Errorf("records[%d]: %w", i, err)
		}
	}
	return nil
}

// executeStep runs one step and returns its result with any expectation failures.
func (h *Harness) executeStep(ctx context.Context, step Step) (StepResult, []string) {
	sr := StepResult{Action: step.Action, Target: step.ID}

	var (
		report *ir.RecomputeReport
		err    error
	)

	switch step.Action {
	case ActionAddFormula:
		opts := []registry.AddOption{registry.WithUnits(step.Units)}
		if step.ID != "" {
			opts = append(opts, registry.WithID(step.ID))
		}
		if step.Active != nil {
			opts = append(opts, registry.WithActive(*step.Active))
		}
		var id string
		var r ir.RecomputeReport
		id, r, err = h.catalog.AddFormula(ctx, step.Field, step.Expression, opts...)
		if err == nil {
			sr.Target = id
			report = &r
		} else if sr.Target == "" {
			sr.Target = step.Field
		}

	case ActionUpdateFormula:
		var r ir.RecomputeReport
		r, err = h.catalog.SaveFormula(ctx, step.ID, step.Expression)
		if err == nil {
			report = &r
		}

	case ActionSetActive:
		report, err = h.catalog.SetFormulaActive(ctx, step.ID, *step.Active)
		if err == nil && report == nil {
			sr.Outcome = OutcomeUnchanged
		}

	case ActionDeleteFormula:
		err = h.catalog.DeleteFormula(ctx, step.ID)

	case ActionCreateRecord:
		var attrs ir.Attributes
		attrs, err = ir.NewAttributes(step.Attributes)
		if err != nil {
			return sr, []string{fmt.Sprintf("invalid attributes: %v", err)}
		}
		var id string
		var derived ir.Attributes
		id, derived, err = h.catalog.CreateRecord(ctx, step.ID, attrs)
		if err == nil {
			sr.Target = id
			sr.Derived = derived
		}

	case ActionRecompute:
		var r ir.RecomputeReport
		if len(step.IDs) > 0 {
			r, err = h.catalog.RecomputeRecords(ctx, step.IDs)
		} else {
			r, err = h.catalog.Recompute(ctx)
		}
		if err == nil {
			report = &r
		}
	}

	if err != nil {
		sr.Error = errorCode(err)
	}
	if report != nil {
		sr.Report = report
		sr.Outcome = string(catalog.OutcomeOf(*report))
	}

	h.logger.Debug("step executed", "action", step.Action, "target", sr.Target, "outcome", sr.Outcome, "error", sr.Error)
	return sr, checkExpect(step, sr, err)
}

// errorCode returns the registry error code of err, or its message.
func errorCode(err error) string {
	var regErr *registry.RegistryError
	if errors.As(err, &regErr) {
		return string(regErr.Code)
	}
	return err.Error()
}

// checkExpect compares a step result against its expect clause.
func checkExpect(step Step, sr StepResult, err error) []string {
	exp := step.Expect

	if err != nil {
		if exp != nil && exp.Error != "" {
			if sr.Error != exp.Error {
				return []string{fmt.Sprintf("expected error %s, got %s (%v)", exp.Error, sr.Error, err)}
			}
			return nil
		}
		return []string{fmt.Sprintf("unexpected error: %v", err)}
	}
	if exp == nil {
		return nil
	}

	var errs []string
	if exp.Error != "" {
		errs = append(errs, fmt.Sprintf("expected error %s, step succeeded", exp.Error))
	}
	if exp.Outcome != "" && exp.Outcome != sr.Outcome {
		errs = append(errs, fmt.Sprintf("expected outcome %s, got %q", exp.Outcome, sr.Outcome))
	}

	if exp.Total != nil || exp.Succeeded != nil || exp.Failed != nil {
		if sr.Report == nil {
			errs = append(errs, "expected a recompute report, step did not recompute")
		} else {
			r := sr.Report
			if exp.Total != nil && *exp.Total != r.Total {
				errs = append(errs, fmt.Sprintf("expected total %d, got %d", *exp.Total, r.Total))
			}
			if exp.Succeeded != nil && *exp.Succeeded != r.Succeeded {
				errs = append(errs, fmt.Sprintf("expected succeeded %d, got %d", *exp.Succeeded, r.Succeeded))
			}
			if exp.Failed != nil {
				want := slices.Clone(exp.Failed)
				slices.Sort(want)
				if !slices.Equal(want, r.FailedRecordIDs) {
					errs = append(errs, fmt.Sprintf("expected failed %v, got %v", want, r.FailedRecordIDs))
				}
			}
		}
	}

	if exp.Derived != nil {
		errs = append(errs, matchAttributes("derived", sr.Derived, exp.Derived)...)
	}

	return errs
}
