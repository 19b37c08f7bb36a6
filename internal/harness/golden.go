package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/formulary/internal/ir"
)

// Snapshot renders the deterministic outcome of a scenario as canonical JSON
// followed by a newline: every step with its outcome, then the final records.
//
// Report fingerprints are left out so that snapshots do not change when the
// hashing scheme does.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	steps := make([]any, len(result.Steps))
	for i, sr := range result.Steps {
		step := map[string]any{"action": sr.Action}
		if sr.Target != "" {
			step["target"] = sr.Target
		}
		if sr.Outcome != "" {
			step["outcome"] = sr.Outcome
		}
		if sr.Report != nil {
			step["total"] = sr.Report.Total
			step["succeeded"] = sr.Report.Succeeded
			step["failed_record_ids"] = sr.Report.FailedRecordIDs
		}
		if sr.Derived != nil {
			step["derived"] = sr.Derived
		}
		if sr.Error != "" {
			step["error"] = sr.Error
		}
		steps[i] = step
	}

	records := make([]any, len(result.Records))
	for i, rec := range result.Records {
		records[i] = map[string]any{
			"id":         rec.ID,
			"attributes": rec.Attributes,
		}
	}

	data, err := ir.MarshalCanonical(map[string]any{
		"scenario_name": scenario.Name,
		"steps":         steps,
		"records":       records,
	})
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the snapshot of an existing result against its
// golden file without re-running the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}
