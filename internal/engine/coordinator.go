package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/formulary/internal/ir"
)

// Defaults for bulk recomputation.
const (
	DefaultConcurrency  = 4
	DefaultWriteTimeout = 10 * time.Second
)

// RecordWriter persists derived fields onto an existing record.
//
// UpdateFields must merge: keys absent from fields are left unchanged and
// null values are stored as null.
type RecordWriter interface {
	UpdateFields(ctx context.Context, id string, fields ir.Attributes) error
}

// Coordinator recomputes derived fields for many records and persists them.
//
// Thread-safety: a Coordinator is safe for concurrent use, but concurrent
// passes over the same records race at the store; last write wins.
type Coordinator struct {
	writer       RecordWriter
	pipeline     *Pipeline
	concurrency  int
	writeTimeout time.Duration
	logger       *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithConcurrency bounds the number of records processed at once.
// Values below 1 are treated as 1.
func WithConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n < 1 {
			n = 1
		}
		c.concurrency = n
	}
}

// WithWriteTimeout bounds each record write. A timed-out write is a failed record.
func WithWriteTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.writeTimeout = d
	}
}

// WithLogger sets the logger for pass progress and record failures.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithPipeline sets the pipeline used per record. Defaults to NewPipeline().
func WithPipeline(p *Pipeline) CoordinatorOption {
	return func(c *Coordinator) {
		c.pipeline = p
	}
}

// NewCoordinator creates a Coordinator that writes through writer.
func NewCoordinator(writer RecordWriter, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		writer:       writer,
		concurrency:  DefaultConcurrency,
		writeTimeout: DefaultWriteTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.pipeline == nil {
		c.pipeline = NewPipeline(WithPipelineLogger(c.logger))
	}
	return c
}

// RecomputeAll recomputes the active formulas for every record and writes
// the derived fields back.
//
// The formula list is prepared once and held fixed for the pass. Only
// derived fields are written; raw attributes are never touched. A formula
// that fails for a record writes null so no stale value survives.
//
// Per-record failures are collected, never returned: the pass always runs
// to completion. When ctx is cancelled no new records are started,
// in-flight writes finish, and unstarted records are reported failed with
// Cancelled set.
func (c *Coordinator) RecomputeAll(ctx context.Context, formulas []ir.FormulaDefinition, records []ir.Record) ir.RecomputeReport {
	plan := c.pipeline.Prepare(formulas)

	report := ir.RecomputeReport{
		Total:           len(records),
		FailedRecordIDs: []string{},
	}
	if fp, err := ir.FormulaSetFingerprint(plan.Formulas()); err == nil {
		report.Fingerprint = fp
	} else {
		c.logger.Warn("formula set fingerprint failed", "error", err)
	}

	start := time.Now()
	c.logger.Info("recompute starting",
		"records", len(records),
		"formulas", len(plan.steps),
		"concurrency", c.concurrency,
		"fingerprint", report.Fingerprint,
	)

	var mu sync.Mutex
	fail := func(err *RecordError) {
		mu.Lock()
		defer mu.Unlock()
		report.FailedRecordIDs = append(report.FailedRecordIDs, err.RecordID)
		report.Failures = append(report.Failures, ir.RecordFailure{RecordID: err.RecordID, Reason: err.Error()})
		if IsCancelledError(err) {
			report.Cancelled = true
		}
	}
	succeed := func() {
		mu.Lock()
		defer mu.Unlock()
		report.Succeeded++
	}

	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for i, rec := range records {
		if ctx.Err() != nil {
			for _, skipped := range records[i:] {
				fail(NewCancelledError(skipped.ID, context.Cause(ctx)))
			}
			break
		}

		rec := rec
		g.Go(func() error {
			// Cancellation may arrive while waiting for a worker slot.
			if ctx.Err() != nil {
				fail(NewCancelledError(rec.ID, context.Cause(ctx)))
				return nil
			}
			if err := c.recomputeRecord(ctx, plan, rec); err != nil {
				if IsTimeoutError(err) {
					c.logger.Warn("record write timed out", "record_id", rec.ID, "timeout", c.writeTimeout)
				} else {
					c.logger.Warn("record recompute failed", "record_id", rec.ID, "error", err)
				}
				fail(err)
				return nil
			}
			succeed()
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	sort.Strings(report.FailedRecordIDs)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].RecordID < report.Failures[j].RecordID
	})

	c.logger.Info("recompute finished",
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", len(report.FailedRecordIDs),
		"cancelled", report.Cancelled,
		"duration", time.Since(start),
	)
	return report
}

// recomputeRecord computes and writes one record's derived fields.
func (c *Coordinator) recomputeRecord(ctx context.Context, plan *Plan, rec ir.Record) *RecordError {
	derived, _ := plan.ComputeRecord(rec)
	if len(derived) == 0 {
		return nil
	}

	// In-flight writes outlive cancellation of the pass but not their own deadline.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.writer.UpdateFields(wctx, rec.ID, derived)
	}()

	var err error
	select {
	case err = <-done:
	case <-wctx.Done():
		err = wctx.Err()
	}
	if err == nil {
		return nil
	}
	return NewWriteError(rec.ID, err, errors.Is(err, context.DeadlineExceeded))
}
