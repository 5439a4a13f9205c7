package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: light_on
description: "A confident utterance is recognized"
node:
  culture: en-US
  groups:
    - phrases: [turn on, turn off]
steps:
  - expect: { state: Recognizing, grammar_loaded: true }
  - say: { text: "turn on", confidence: 0.9 }
    expect: { result: "turn on", recognized: true }
`

const failingScenario = `
name: wrong_state
description: "Expects a state the session never reaches"
node:
  culture: en-US
  groups:
    - phrases: [yes]
steps:
  - expect: { state: Bound }
`

type testResponse struct {
	Status string     `json:"status"`
	Data   TestResult `json:"data"`
	Error  *CLIError  `json:"error"`
}

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scenarios directory not found")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandEmptyDirJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), t.TempDir())
	require.NoError(t, err)

	var resp testResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.Data.Total)
}

func TestTestCommandPassingScenario(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"light_on.yaml": passingScenario})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ light_on")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandFailingScenario(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"light_on.yaml":    passingScenario,
		"wrong_state.yaml": failingScenario,
	})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp testResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Equal(t, 1, resp.Data.Failed)

	require.Len(t, resp.Data.Scenarios, 2)
	failed := resp.Data.Scenarios[1]
	assert.Equal(t, "wrong_state", failed.Name)
	require.NotEmpty(t, failed.Errors)
	assert.Contains(t, failed.Errors[0], "state")
}

func TestTestCommandFilter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"light_on.yaml":    passingScenario,
		"wrong_state.yaml": failingScenario,
	})

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "light_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestTestCommandGoldenRoundTrip(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"light_on.yaml": passingScenario})
	goldenPath := filepath.Join(dir, "golden", "light_on.golden")

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "golden updated")
	require.FileExists(t, goldenPath)

	_, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(goldenPath, []byte("{}\n"), 0644))
	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "does not match golden file")
}

func TestFindScenarioFiles(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"b.yaml":    passingScenario,
		"a.yml":     passingScenario,
		"notes.txt": "ignored",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "golden"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "c.yaml"), []byte("x"), 0644))

	files, err := findScenarioFiles(dir, "")
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.yml"), filepath.Join(dir, "b.yaml")}, files)

	_, err = findScenarioFiles(dir, "[")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("scenarios", "golden", "light_on.golden"),
		goldenFilePath(filepath.Join("scenarios", "light_on.yaml")))
}
