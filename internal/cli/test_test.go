package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: remove_missing
description: "k1 has no addedBy"
initial:
  - value: { name: "Shoes", sku: 1 }
  - value: { name: "Hat", sku: 2, addedBy: "alice" }
expect:
  anomalies: [k1]
  remaining: [k2]
`

const failingScenario = `
name: wrong_expectation
description: "expects nothing to be removed"
initial:
  - value: { name: "Shoes", sku: 1 }
expect:
  anomalies: []
  remaining: [k1]
`

func writeScenarios(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestTestCommandMissingArgs(t *testing.T) {
	_, _, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentDir(t *testing.T) {
	_, _, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, _, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestTestCommandPassing(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"remove.yaml": passingScenario})

	out, _, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ remove_missing")
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommandFailing(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"remove.yaml": passingScenario,
		"wrong.yaml":  failingScenario,
	})

	out, _, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong_expectation")
	assert.Contains(t, out, "anomalies: expected [], got [k1]")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommandFilter(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"remove.yaml": passingScenario,
		"wrong.yaml":  failingScenario,
	})

	out, _, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir, "--filter", "rem*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 total")
}

func TestTestCommandGoldenUpdateAndCompare(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"remove.yaml": passingScenario})
	goldenPath := filepath.Join(dir, "golden", "remove.golden")

	_, _, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir, "--update")
	require.NoError(t, err)

	golden, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"remove_missing"`)
	assert.Contains(t, string(golden), `"type":"remove"`)

	// Unchanged trace matches.
	_, _, err = runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)

	// A tampered golden file fails.
	require.NoError(t, os.WriteFile(goldenPath, []byte(`{"trace":[]}`), 0644))
	out, _, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommandJSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"remove.yaml": passingScenario})

	out, _, err := runCommand(NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.Passed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "remove_missing", resp.Data.Scenarios[0].Name)
}

func TestTestCommandLoadError(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"broken.yaml": "name: [unclosed"})

	out, _, err := runCommand(NewTestCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}
