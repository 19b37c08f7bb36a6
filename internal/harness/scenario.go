package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a scripted sequence of catalog operations.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Precision overrides the number of decimals results are rounded to.
	Precision *int `yaml:"precision,omitempty"`

	// DuplicateCheck rejects a second active formula for the same field.
	DuplicateCheck bool `yaml:"duplicate_check,omitempty"`

	// Records are inserted before the first step, without derived fields.
	Records []RecordSeed `yaml:"records,omitempty"`

	// Steps run in order against the catalog.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final store contents.
	Assertions []Assertion `yaml:"assertions"`
}

// RecordSeed is a record present before the scenario starts.
type RecordSeed struct {
	ID         string         `yaml:"id"`
	Attributes map[string]any `yaml:"attributes"`
}

// Step is one catalog operation.
type Step struct {
	// Action is one of the Action* constants.
	Action string `yaml:"action"`

	// ID is the formula id (formula actions) or record id (create_record).
	ID string `yaml:"id,omitempty"`

	Field      string         `yaml:"field,omitempty"`
	Expression string         `yaml:"expression,omitempty"`
	Units      string         `yaml:"units,omitempty"`
	Active     *bool          `yaml:"active,omitempty"`
	Attributes map[string]any `yaml:"attributes,omitempty"`

	// IDs limits recompute to these records.
	IDs []string `yaml:"ids,omitempty"`

	// Expect specifies the expected step result.
	// If nil, the step only has to succeed.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies the expected result of a step.
type ExpectClause struct {
	// Outcome is ALL_RECOMPUTED, PARTIAL_FAILURE, or UNCHANGED (set_active
	// that did not change the active set).
	Outcome string `yaml:"outcome,omitempty"`

	Total     *int `yaml:"total,omitempty"`
	Succeeded *int `yaml:"succeeded,omitempty"`

	// Failed lists the record ids expected in the report's failed list.
	Failed []string `yaml:"failed,omitempty"`

	// Derived is a subset match on the derived values of a created record.
	Derived map[string]any `yaml:"derived,omitempty"`

	// Error is the registry error code the step must fail with.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the final store contents.
type Assertion struct {
	// Type specifies the assertion type (Assert* constants).
	Type string `yaml:"type"`

	// Record is the record id (record_fields, missing_fields).
	Record string `yaml:"record,omitempty"`

	// Expect contains expected attribute values (record_fields).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Fields lists attribute names (missing_fields) or derived fields
	// in order (active_fields).
	Fields []string `yaml:"fields,omitempty"`

	// Count is the expected number of records (record_count).
	Count *int `yaml:"count,omitempty"`
}

// Step action constants.
const (
	ActionAddFormula    = "add_formula"
	ActionUpdateFormula = "update_formula"
	ActionSetActive     = "set_active"
	ActionDeleteFormula = "delete_formula"
	ActionCreateRecord  = "create_record"
	ActionRecompute     = "recompute"
)

// Assertion type constants.
const (
	AssertRecordFields  = "record_fields"
	AssertMissingFields = "missing_fields"
	AssertRecordCount   = "record_count"
	AssertActiveFields  = "active_fields"
)

// OutcomeUnchanged is reported by set_active when the active set did not change.
const OutcomeUnchanged = "UNCHANGED"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Precision != nil && (*s.Precision < 0 || *s.Precision > 10) {
		return fmt.Errorf("precision must be between 0 and 10, got %d", *s.Precision)
	}

	seen := make(map[string]bool)
	for i, rec := range s.Records {
		if rec.ID == "" {
			return fmt.Errorf("records[%d]: id is required", i)
		}
		if seen[rec.ID] {
			return fmt.Errorf("records[%d]: duplicate id %q", i, rec.ID)
		}
		seen[rec.ID] = true
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks the fields each action requires.
func validateStep(index int, st *Step) error {
	switch st.Action {
	case ActionAddFormula:
		if st.Field == "" {
			return fmt.Errorf("steps[%d]: field is required for add_formula", index)
		}
	case ActionUpdateFormula:
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for update_formula", index)
		}
	case ActionSetActive:
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for set_active", index)
		}
		if st.Active == nil {
			return fmt.Errorf("steps[%d]: active is required for set_active", index)
		}
	case ActionDeleteFormula:
		if st.ID == "" {
			return fmt.Errorf("steps[%d]: id is required for delete_formula", index)
		}
	case ActionCreateRecord, ActionRecompute:
	case "":
		return fmt.Errorf("steps[%d]: action is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown action %q", index, st.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRecordFields:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for record_fields", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for record_fields", index)
		}
	case AssertMissingFields:
		if a.Record == "" {
			return fmt.Errorf("assertions[%d]: record is required for missing_fields", index)
		}
		if len(a.Fields) == 0 {
			return fmt.Errorf("assertions[%d]: fields is required for missing_fields", index)
		}
	case AssertRecordCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for record_count", index)
		}
	case AssertActiveFields:
		if a.Fields == nil {
			return fmt.Errorf("assertions[%d]: fields is required for active_fields (use [] for none)", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
