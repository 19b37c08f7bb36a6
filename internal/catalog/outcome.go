package catalog

import (
	"fmt"
	"sort"

	"github.com/roach88/formulary/internal/ir"
)

// Outcome classifies a recompute report for the administrator.
type Outcome string

const (
	// AllRecomputed means every record was updated.
	AllRecomputed Outcome = "ALL_RECOMPUTED"

	// PartialFailure means at least one record kept its previous values.
	PartialFailure Outcome = "PARTIAL_FAILURE"
)

// OutcomeOf classifies report.
func OutcomeOf(report ir.RecomputeReport) Outcome {
	if report.OK() {
		return AllRecomputed
	}
	return PartialFailure
}

// Summary renders a one-line, human-readable description of report.
func Summary(report ir.RecomputeReport) string {
	if OutcomeOf(report) == AllRecomputed {
		return fmt.Sprintf("all %d records recomputed", report.Total)
	}
	msg := fmt.Sprintf("%d of %d records recomputed, %d failed", report.Succeeded, report.Total, len(report.FailedRecordIDs))
	if report.Cancelled {
		msg += " (cancelled)"
	}
	return msg
}

func sortReport(report *ir.RecomputeReport) {
	sort.Strings(report.FailedRecordIDs)
	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].RecordID < report.Failures[j].RecordID
	})
}
