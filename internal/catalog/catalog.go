package catalog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/formulary/internal/engine"
	"github.com/roach88/formulary/internal/ir"
	"github.com/roach88/formulary/internal/registry"
)

// RecordStore is the remote table of catalog records.
//
// ListAll returns records in a stable order. Unknown ids yield an error
// matching ir.ErrNotFound. UpdateFields merges and keeps explicit nulls.
type RecordStore interface {
	ListAll(ctx context.Context) ([]ir.Record, error)
	Get(ctx context.Context, id string) (ir.Record, error)
	Insert(ctx context.Context, rec ir.Record) (string, error)
	UpdateFields(ctx context.Context, id string, fields ir.Attributes) error
	Delete(ctx context.Context, id string) error
}

// Catalog coordinates formula changes and record writes.
type Catalog struct {
	registry    *registry.Registry
	records     RecordStore
	pipeline    *engine.Pipeline
	coordinator *engine.Coordinator
	logger      *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithPipeline sets the pipeline used for single-record computation.
// The coordinator built by New uses the same pipeline unless WithCoordinator is given.
func WithPipeline(p *engine.Pipeline) Option {
	return func(c *Catalog) {
		c.pipeline = p
	}
}

// WithCoordinator sets the bulk coordinator.
func WithCoordinator(co *engine.Coordinator) Option {
	return func(c *Catalog) {
		c.coordinator = co
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// New creates a Catalog over a registry and a record store.
func New(reg *registry.Registry, records RecordStore, opts ...Option) *Catalog {
	c := &Catalog{
		registry: reg,
		records:  records,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pipeline == nil {
		c.pipeline = engine.NewPipeline(engine.WithPipelineLogger(c.logger))
	}
	if c.coordinator == nil {
		c.coordinator = engine.NewCoordinator(records,
			engine.WithPipeline(c.pipeline),
			engine.WithLogger(c.logger),
		)
	}
	return c
}

// Registry returns the formula registry.
func (c *Catalog) Registry() *registry.Registry {
	return c.registry
}

// Preview is the result of computing derived fields without persisting them.
type Preview struct {
	Derived  ir.Attributes
	Failures []*engine.FieldError
}

// PreviewRecord computes derived fields for attrs with the active formulas.
// Nothing is written.
func (c *Catalog) PreviewRecord(ctx context.Context, attrs ir.Attributes) (Preview, error) {
	formulas, err := c.registry.ListActive(ctx)
	if err != nil {
		return Preview{}, err
	}
	derived, failures := c.pipeline.ComputeDetailed(attrs, formulas)
	return Preview{Derived: derived, Failures: failures}, nil
}

// CreateRecord computes derived fields for attrs, merges them over the
// submitted attributes, and inserts the record. Returns the new id and the
// derived fields. A derived field overwrites a submitted attribute of the
// same name.
func (c *Catalog) CreateRecord(ctx context.Context, id string, attrs ir.Attributes) (string, ir.Attributes, error) {
	preview, err := c.PreviewRecord(ctx, attrs)
	if err != nil {
		return "", nil, err
	}

	newID, err := c.records.Insert(ctx, ir.Record{ID: id, Attributes: attrs.Merge(preview.Derived)})
	if err != nil {
		return "", nil, fmt.Errorf("create record: %w", err)
	}

	c.logger.Info("record created", "id", newID, "derived", len(preview.Derived), "failed_fields", len(preview.Failures))
	return newID, preview.Derived, nil
}

// DeleteRecord removes a record. Formulas are not involved, so nothing is
// recomputed.
func (c *Catalog) DeleteRecord(ctx context.Context, id string) error {
	if err := c.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	c.logger.Info("record deleted", "id", id)
	return nil
}

// AddFormula adds a formula and recomputes every record.
func (c *Catalog) AddFormula(ctx context.Context, fieldName, expression string, opts ...registry.AddOption) (string, ir.RecomputeReport, error) {
	id, err := c.registry.Add(ctx, fieldName, expression, opts...)
	if err != nil {
		return "", ir.RecomputeReport{}, err
	}
	report, err := c.Recompute(ctx)
	return id, report, err
}

// SaveFormula replaces a formula's expression and recomputes every record.
func (c *Catalog) SaveFormula(ctx context.Context, id, expression string) (ir.RecomputeReport, error) {
	if err := c.registry.Update(ctx, id, expression); err != nil {
		return ir.RecomputeReport{}, err
	}
	return c.Recompute(ctx)
}

// SetFormulaActive enables or disables a formula. Records are recomputed
// only when the active set changed; otherwise the report is nil.
func (c *Catalog) SetFormulaActive(ctx context.Context, id string, active bool) (*ir.RecomputeReport, error) {
	changed, err := c.registry.SetActive(ctx, id, active)
	if err != nil || !changed {
		return nil, err
	}
	report, err := c.Recompute(ctx)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// DeleteFormula removes a formula without recomputing.
func (c *Catalog) DeleteFormula(ctx context.Context, id string) error {
	return c.registry.Delete(ctx, id)
}

// Recompute recomputes every record with the current active formulas.
// The error covers loading formulas and records; per-record failures are
// in the report.
func (c *Catalog) Recompute(ctx context.Context) (ir.RecomputeReport, error) {
	formulas, err := c.registry.ListActive(ctx)
	if err != nil {
		return ir.RecomputeReport{}, err
	}
	records, err := c.records.ListAll(ctx)
	if err != nil {
		return ir.RecomputeReport{}, fmt.Errorf("recompute: list records: %w", err)
	}
	return c.coordinator.RecomputeAll(ctx, formulas, records), nil
}

// RecomputeRecords recomputes only the given records, e.g. the
// FailedRecordIDs of an earlier report. Ids that cannot be loaded are
// reported as failed.
func (c *Catalog) RecomputeRecords(ctx context.Context, ids []string) (ir.RecomputeReport, error) {
	formulas, err := c.registry.ListActive(ctx)
	if err != nil {
		return ir.RecomputeReport{}, err
	}

	var records []ir.Record
	var missing []ir.RecordFailure
	for _, id := range ids {
		rec, err := c.records.Get(ctx, id)
		if err != nil {
			missing = append(missing, ir.RecordFailure{RecordID: id, Reason: err.Error()})
			continue
		}
		records = append(records, rec)
	}

	report := c.coordinator.RecomputeAll(ctx, formulas, records)
	if len(missing) == 0 {
		return report, nil
	}

	report.Total += len(missing)
	for _, m := range missing {
		report.FailedRecordIDs = append(report.FailedRecordIDs, m.RecordID)
	}
	report.Failures = append(report.Failures, missing...)
	sortReport(&report)
	return report, nil
}
