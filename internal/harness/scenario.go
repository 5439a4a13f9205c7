package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/grammarctl/internal/grammar"
	"github.com/roach88/grammarctl/internal/session"
)

// Scenario defines a conformance test scenario.
// Scenarios drive a session through a sequence of ticks and assert on the
// sampled outputs and the recorded event trace.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Cultures lists the installed recognizers of the simulated backend.
	// If empty, the backend's default cultures are installed.
	Cultures []string `yaml:"cultures,omitempty"`

	// RejectLoads makes the backend refuse every grammar load.
	RejectLoads bool `yaml:"reject_loads,omitempty"`

	// UpdateTimeout bounds each rendezvous wait (Go duration syntax).
	// If empty, the harness default applies.
	UpdateTimeout string `yaml:"update_timeout,omitempty"`

	// Node is the configuration read by the first tick.
	Node NodeConfig `yaml:"node"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and event log.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// NodeConfig is the initial per-tick configuration.
type NodeConfig struct {
	Culture             string                `yaml:"culture"`
	Enabled             *bool                 `yaml:"enabled,omitempty"`
	ConfidenceThreshold *float64              `yaml:"confidence_threshold,omitempty"`
	Groups              []grammar.ChoiceGroup `yaml:"groups"`
}

// Patch changes configuration fields before a step's ticks.
// Nil fields are left unchanged.
type Patch struct {
	Culture             *string                `yaml:"culture,omitempty"`
	Enabled             *bool                  `yaml:"enabled,omitempty"`
	ConfidenceThreshold *float64               `yaml:"confidence_threshold,omitempty"`
	Groups              *[]grammar.ChoiceGroup `yaml:"groups,omitempty"`
}

// Utterance is speech delivered to the live recognizer.
type Utterance struct {
	Text       string  `yaml:"text"`
	Confidence float64 `yaml:"confidence"`
}

// Step is one unit of scenario execution.
type Step struct {
	// Wedge, when set, stops (true) or resumes (false) the live
	// recognizer's update processing.
	Wedge *bool `yaml:"wedge,omitempty"`

	// Set patches the configuration.
	Set *Patch `yaml:"set,omitempty"`

	// Say delivers an utterance and waits until the engine processed it.
	Say *Utterance `yaml:"say,omitempty"`

	// Ticks is the number of ticks to run. Zero means one.
	Ticks int `yaml:"ticks,omitempty"`

	// Expect validates the outputs of the step's last tick.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause specifies expected outputs. Only set fields are validated.
type ExpectClause struct {
	Result         *string  `yaml:"result,omitempty"`
	Confidence     *float64 `yaml:"confidence,omitempty"`
	Recognized     *bool    `yaml:"recognized,omitempty"`
	SpeechDetected *bool    `yaml:"speech_detected,omitempty"`
	CultureFound   *bool    `yaml:"culture_found,omitempty"`
	GrammarLoaded  *bool    `yaml:"grammar_loaded,omitempty"`
	State          string   `yaml:"state,omitempty"`
	Choices        []int    `yaml:"choices,omitempty"`
	Reloads        *int     `yaml:"reloads,omitempty"`

	// Errors lists the fault codes the tick reported, in order.
	// An explicit empty list asserts the tick reported none.
	Errors []string `yaml:"errors,omitempty"`
}

// Assertion validates the trace or the event log.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an event appears with matching fields
	// - "trace_order": Check event kinds appear in order
	// - "trace_count": Check an event kind appears exactly N times
	// - "final_state": Query a log table and verify expected values
	Type string `yaml:"type"`

	// Kind is the event kind (used by trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Optional field filters (used by trace_contains).
	Text     *string `yaml:"text,omitempty"`
	Code     *string `yaml:"code,omitempty"`
	Culture  *string `yaml:"culture,omitempty"`
	Accepted *bool   `yaml:"accepted,omitempty"`

	// Kinds is the expected kind order (used by trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the log table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

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

// ParseScenario parses scenario YAML.
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
		return errors.New("name is required")
	}

	if s.Description == "" {
		return errors.New("description is required")
	}

	if s.Node.Culture == "" {
		return errors.New("node.culture is required")
	}

	if len(s.Steps) == 0 {
		return errors.New("steps list is required and must be non-empty")
	}

	if s.UpdateTimeout != "" {
		if d, err := time.ParseDuration(s.UpdateTimeout); err != nil || d < 0 {
			return fmt.Errorf("update_timeout %q is not a non-negative duration", s.UpdateTimeout)
		}
	}

	for i, step := range s.Steps {
		if step.Ticks < 0 {
			return fmt.Errorf("steps[%d]: ticks must be non-negative", i)
		}
		if step.Say != nil && step.Say.Text == "" {
			return fmt.Errorf("steps[%d].say: text is required", i)
		}
		if step.Expect != nil && step.Expect.State != "" && !knownState(step.Expect.State) {
			return fmt.Errorf("steps[%d].expect: unknown state %q", i, step.Expect.State)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func knownState(name string) bool {
	for _, s := range session.States() {
		if s.String() == name {
			return true
		}
	}
	return false
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
