package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordsync/internal/ir"
)

func TestLoadScenario_ValidFile(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "patch_with_overwrites.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "patch_with_overwrites", scenario.Name)
	assert.True(t, scenario.OverwritesAsAdds)
	assert.Equal(t, "shoppingCartItems", scenario.CollectionName())
	require.Len(t, scenario.Rules, 1)
	assert.Equal(t, "fill-added-by", scenario.Rules[0].ID)
	require.Len(t, scenario.Live, 1)
	assert.Equal(t, "custom", scenario.Live[0].Key)
	assert.Equal(t, 42, scenario.Live[0].Value)
	assert.Equal(t, []string{"k1", "custom"}, scenario.Expect.Remaining)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: "has a typo"
initial:
  - value: { name: "x" }
expect:
  anomaly: [k1]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\ninitial: [{value: 1}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\ninitial: [{value: 1}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no children",
			yaml:    "name: n\ndescription: d\n",
			wantErr: "at least one initial or live child",
		},
		{
			name:    "null value",
			yaml:    "name: n\ndescription: d\nlive: [{key: a, value: null}]\n",
			wantErr: "live[0]: value is required",
		},
		{
			name:    "rule without id",
			yaml:    "name: n\ndescription: d\ninitial: [{value: 1}]\nrules: [{require: [a]}]\n",
			wantErr: "rules[0]: id is required",
		},
		{
			name:    "rule without require",
			yaml:    "name: n\ndescription: d\ninitial: [{value: 1}]\nrules: [{id: r}]\n",
			wantErr: "rules[0]: require list is required",
		},
		{
			name:    "duplicate rule",
			yaml:    "name: n\ndescription: d\ninitial: [{value: 1}]\nrules: [{id: r, require: [a]}, {id: r, require: [b]}]\n",
			wantErr: `duplicate id "r"`,
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

func TestScenario_CompileRules(t *testing.T) {
	s := &Scenario{Rules: []RuleDef{
		{ID: "need-sku", Require: []string{"sku"}},
		{ID: "fill", Require: []string{"addedBy"}, Action: "patch", Patch: map[string]any{"addedBy": "unknown"}},
	}}

	rules, err := s.CompileRules()
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, ir.ActionRemove, rules[0].Action)
	assert.Equal(t, ir.ActionPatch, rules[1].Action)
	assert.Equal(t, ir.Fields{"addedBy": ir.String("unknown")}, rules[1].Patch)
}

func TestScenario_CompileRulesDefault(t *testing.T) {
	rules, err := (&Scenario{}).CompileRules()
	require.NoError(t, err)
	assert.Nil(t, rules)
}

func TestScenario_CompileRulesInvalid(t *testing.T) {
	s := &Scenario{Rules: []RuleDef{
		{ID: "fill", Require: []string{"addedBy"}, Action: "patch", Patch: map[string]any{"name": "x"}},
	}}
	_, err := s.CompileRules()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "patch must set required field")
}

func TestGoldenPath(t *testing.T) {
	got := GoldenPath(filepath.Join("scenarios", "cart.yaml"))
	assert.Equal(t, filepath.Join("scenarios", "golden", "cart.golden"), got)
}

func TestLoadScenario_AllTestdata(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		_, err := os.Stat(f)
		require.NoError(t, err)
		_, err = LoadScenario(f)
		assert.NoError(t, err, f)
	}
}
