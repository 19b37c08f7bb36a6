package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "one formula"
steps:
  - action: add_formula
    field: area
    expression: "width * height"
assertions:
  - type: record_count
    count: 0
`

func TestParseScenarioMinimal(t *testing.T) {
	s, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "minimal", s.Name)
	require.Len(t, s.Steps, 1)
	assert.Equal(t, ActionAddFormula, s.Steps[0].Action)
	assert.Equal(t, "area", s.Steps[0].Field)
	require.Len(t, s.Assertions, 1)
	require.NotNil(t, s.Assertions[0].Count)
	assert.Equal(t, 0, *s.Assertions[0].Count)
	assert.Nil(t, s.Precision)
}

func TestLoadScenarioFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "chained_formulas.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "chained_formulas", s.Name)
	require.Len(t, s.Records, 2)
	assert.Equal(t, "r1", s.Records[0].ID)
	assert.Equal(t, 2, s.Records[0].Attributes["width"])
	assert.Equal(t, 1.5, s.Records[1].Attributes["width"])
	require.NotNil(t, s.Steps[0].Expect)
	assert.Equal(t, "ALL_RECOMPUTED", s.Steps[0].Expect.Outcome)
}

func TestLoadScenarioMissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenarioRejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenarioValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing name",
			yaml: `
description: d
steps: [{action: recompute}]
assertions: [{type: record_count, count: 0}]`,
			want: "name is required",
		},
		{
			name: "missing description",
			yaml: `
name: n
steps: [{action: recompute}]
assertions: [{type: record_count, count: 0}]`,
			want: "description is required",
		},
		{
			name: "no steps",
			yaml: `
name: n
description: d
assertions: [{type: record_count, count: 0}]`,
			want: "steps list is required",
		},
		{
			name: "no assertions",
			yaml: `
name: n
description: d
steps: [{action: recompute}]`,
			want: "assertions list is required",
		},
		{
			name: "unknown action",
			yaml: `
name: n
description: d
steps: [{action: explode}]
assertions: [{type: record_count, count: 0}]`,
			want: `unknown action "explode"`,
		},
		{
			name: "set_active without active",
			yaml: `
name: n
description: d
steps: [{action: set_active, id: f1}]
assertions: [{type: record_count, count: 0}]`,
			want: "active is required for set_active",
		},
		{
			name: "update without id",
			yaml: `
name: n
description: d
steps: [{action: update_formula, expression: "1"}]
assertions: [{type: record_count, count: 0}]`,
			want: "id is required for update_formula",
		},
		{
			name: "record without id",
			yaml: `
name: n
description: d
records: [{attributes: {a: 1}}]
steps: [{action: recompute}]
assertions: [{type: record_count, count: 0}]`,
			want: "records[0]: id is required",
		},
		{
			name: "duplicate record id",
			yaml: `
name: n
description: d
records: [{id: a}, {id: a}]
steps: [{action: recompute}]
assertions: [{type: record_count, count: 0}]`,
			want: `duplicate id "a"`,
		},
		{
			name: "record_fields without expect",
			yaml: `
name: n
description: d
steps: [{action: recompute}]
assertions: [{type: record_fields, record: a}]`,
			want: "expect is required for record_fields",
		},
		{
			name: "record_count without count",
			yaml: `
name: n
description: d
steps: [{action: recompute}]
assertions: [{type: record_count}]`,
			want: "count is required for record_count",
		},
		{
			name: "unknown assertion",
			yaml: `
name: n
description: d
steps: [{action: recompute}]
assertions: [{type: trace_contains}]`,
			want: `unknown assertion type "trace_contains"`,
		},
		{
			name: "bad precision",
			yaml: `
name: n
description: d
precision: 11
steps: [{action: recompute}]
assertions: [{type: record_count, count: 0}]`,
			want: "precision must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestScenarioFilesAllParse(t *testing.T) {
	entries, err := os.ReadDir(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		t.Run(entry.Name(), func(t *testing.T) {
			_, err := LoadScenario(filepath.Join("testdata", "scenarios", entry.Name()))
			assert.NoError(t, err)
		})
	}
}
