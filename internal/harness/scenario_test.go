package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: test_scenario
description: "Test scenario for validation"
node:
  culture: en-US
  groups:
    - phrases: [yes, no]
steps:
  - expect: { state: Recognizing }
`

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(writeScenario(t, minimalScenario))
	require.NoError(t, err)

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, "Test scenario for validation", scenario.Description)
	assert.Equal(t, "en-US", scenario.Node.Culture)
	assert.Nil(t, scenario.Node.Enabled)
	require.Len(t, scenario.Node.Groups, 1)
	assert.Equal(t, []string{"yes", "no"}, scenario.Node.Groups[0].Phrases)
	require.Len(t, scenario.Steps, 1)
	require.NotNil(t, scenario.Steps[0].Expect)
	assert.Equal(t, "Recognizing", scenario.Steps[0].Expect.State)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_FullStep(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: full
description: every step field
cultures: [en-US, de-DE]
reject_loads: true
update_timeout: 50ms
node:
  culture: en-US
  enabled: false
  confidence_threshold: 0.7
  groups:
    - phrases: [a]
steps:
  - wedge: true
    set:
      culture: de-DE
      enabled: true
      confidence_threshold: 0.2
      groups:
        - phrases: [b]
          optional: true
    say: { text: "b", confidence: 0.4 }
    ticks: 3
    expect:
      result: ""
      confidence: 0
      recognized: false
      speech_detected: false
      culture_found: true
      grammar_loaded: false
      state: Bound
      choices: [-1]
      reloads: 1
      errors: [LOAD_REJECTED]
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"en-US", "de-DE"}, scenario.Cultures)
	assert.True(t, scenario.RejectLoads)
	assert.Equal(t, "50ms", scenario.UpdateTimeout)
	require.NotNil(t, scenario.Node.Enabled)
	assert.False(t, *scenario.Node.Enabled)
	assert.Equal(t, 0.7, *scenario.Node.ConfidenceThreshold)

	step := scenario.Steps[0]
	assert.True(t, *step.Wedge)
	assert.Equal(t, "de-DE", *step.Set.Culture)
	require.NotNil(t, step.Set.Groups)
	assert.True(t, (*step.Set.Groups)[0].Optional)
	assert.Equal(t, "b", step.Say.Text)
	assert.Equal(t, 3, step.Ticks)
	assert.Equal(t, []int{-1}, step.Expect.Choices)
	assert.Equal(t, []string{"LOAD_REJECTED"}, step.Expect.Errors)
	assert.Equal(t, 1, *step.Expect.Reloads)
}

func TestParseScenario_EmptyErrorsListIsNotNil(t *testing.T) {
	scenario, err := ParseScenario([]byte(`
name: t
description: d
node: { culture: en-US }
steps:
  - expect: { errors: [] }
`))
	require.NoError(t, err)
	assert.NotNil(t, scenario.Steps[0].Expect.Errors)
	assert.Empty(t, scenario.Steps[0].Expect.Errors)
}

func TestParseScenario_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing_name",
			yaml:    "description: d\nnode: {culture: en-US}\nsteps: [{}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing_description",
			yaml:    "name: n\nnode: {culture: en-US}\nsteps: [{}]\n",
			wantErr: "description is required",
		},
		{
			name:    "missing_culture",
			yaml:    "name: n\ndescription: d\nsteps: [{}]\n",
			wantErr: "node.culture is required",
		},
		{
			name:    "missing_steps",
			yaml:    "name: n\ndescription: d\nnode: {culture: en-US}\n",
			wantErr: "steps list is required",
		},
		{
			name:    "bad_timeout",
			yaml:    "name: n\ndescription: d\nupdate_timeout: soon\nnode: {culture: en-US}\nsteps: [{}]\n",
			wantErr: "update_timeout",
		},
		{
			name:    "negative_ticks",
			yaml:    "name: n\ndescription: d\nnode: {culture: en-US}\nsteps: [{ticks: -1}]\n",
			wantErr: "ticks must be non-negative",
		},
		{
			name:    "empty_utterance",
			yaml:    "name: n\ndescription: d\nnode: {culture: en-US}\nsteps: [{say: {text: ''}}]\n",
			wantErr: "text is required",
		},
		{
			name:    "unknown_state",
			yaml:    "name: n\ndescription: d\nnode: {culture: en-US}\nsteps: [{expect: {state: Listening}}]\n",
			wantErr: `unknown state "Listening"`,
		},
		{
			name:    "malformed_yaml",
			yaml:    "name: [unclosed\n",
			wantErr: "failed to parse YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_UnknownFieldsRejected(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "typo_assertion_singular",
			yaml:    minimalScenario + "assertion:\n  - type: trace_count\n    kind: recognized\n",
			wantErr: "field assertion not found",
		},
		{
			name:    "typo_in_step",
			yaml:    "name: n\ndescription: d\nnode: {culture: en-US}\nsteps:\n  - sey: {text: hi}\n",
			wantErr: "field sey not found",
		},
		{
			name:    "typo_in_group",
			yaml:    "name: n\ndescription: d\nnode:\n  culture: en-US\n  groups:\n    - phrase: [a]\nsteps: [{}]\n",
			wantErr: "field phrase not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_AssertionValidation(t *testing.T) {
	tests := []struct {
		name      string
		assertion string
		wantErr   string
	}{
		{"missing_type", "- kind: recognized", "type is required"},
		{"contains_missing_kind", "- type: trace_contains", "kind is required for trace_contains"},
		{"order_missing_kinds", "- type: trace_order", "kinds list is required"},
		{"count_missing_kind", "- type: trace_count\n  count: 1", "kind is required for trace_count"},
		{"count_negative", "- type: trace_count\n  kind: recognized\n  count: -1", "count must be non-negative"},
		{"state_missing_table", "- type: final_state\n  expect: {a: 1}", "table is required"},
		{"state_missing_expect", "- type: final_state\n  table: events", "expect is required"},
		{"unknown_type", "- type: trace_magic", "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(minimalScenario + "assertions:\n" + indent(tt.assertion)))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseScenario_TraceCountZeroAllowed(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertions:\n  - type: trace_count\n    kind: fault\n    count: 0\n"))
	assert.NoError(t, err)
}

func TestAssertionConstants(t *testing.T) {
	assert.Equal(t, "trace_contains", AssertTraceContains)
	assert.Equal(t, "trace_order", AssertTraceOrder)
	assert.Equal(t, "trace_count", AssertTraceCount)
	assert.Equal(t, "final_state", AssertFinalState)
}

// TestLoadExampleScenarios validates the scenario files in testdata/scenarios.
func TestLoadExampleScenarios(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			assert.NotEmpty(t, scenario.Assertions)
		})
	}
}

func indent(s string) string {
	out := "  "
	for _, r := range s {
		out += string(r)
		if r == '\n' {
			out += "  "
		}
	}
	return out + "\n"
}
