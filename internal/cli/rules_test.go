package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordsync/internal/ir"
)

func TestRulesCommand_Text(t *testing.T) {
	dir := writeRulesDir(t, map[string]string{"rules.cue": validRules})

	out, _, err := runCommand(NewRulesCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, `1. require-added-by [*] require=addedBy action=remove reason="missing addedBy"`)
	assert.Contains(t, out, "2. fill-quantity [shoppingCartItems] require=quantity action=patch patch=quantity=1")
	assert.Contains(t, out, "hash: ")
}

func TestRulesCommand_JSON(t *testing.T) {
	dir := writeRulesDir(t, map[string]string{"rules.cue": validRules})

	out, _, err := runCommand(NewRulesCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   RulesResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, resp.Data.FileCount)
	require.Len(t, resp.Data.Rules, 2)

	wantHash, err := ir.RuleSetHash(resp.Data.Rules)
	require.NoError(t, err)
	assert.Equal(t, wantHash, resp.Data.Hash)
}

func TestRulesCommand_Default(t *testing.T) {
	out, _, err := runCommand(NewRulesCommand(&RootOptions{Format: "text"}))
	require.NoError(t, err)
	assert.Contains(t, out, "require-added-by")
}

func TestRulesCommand_InvalidRules(t *testing.T) {
	dir := writeRulesDir(t, map[string]string{"bad.cue": `
package rules

rule: broken: {
	require: ["addedBy"]
	action:  "patch"
}
`})

	out, _, err := runCommand(NewRulesCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ [E013]")
	assert.Contains(t, out, `patch must set required field "addedBy"`)
}

func TestRulesCommand_InvalidRulesJSON(t *testing.T) {
	dir := writeRulesDir(t, map[string]string{"bad.cue": "package rules\n\nrule: r: {action: \"remove\"}\n"})

	out, _, err := runCommand(NewRulesCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidRequire, resp.Error.Code)
	assert.NotNil(t, resp.Error.Details)
}

func TestRulesCommand_MissingDir(t *testing.T) {
	out, _, err := runCommand(NewRulesCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}
