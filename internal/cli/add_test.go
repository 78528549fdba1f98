package cli

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordsync/internal/cart"
	"github.com/roach88/recordsync/internal/ir"
	"github.com/roach88/recordsync/internal/store"
)

func readFields(t *testing.T, db, key string) ir.Fields {
	t.Helper()
	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()

	node, err := st.Get(context.Background(), testCollection, key)
	require.NoError(t, err)
	rec, err := node.Record()
	require.NoError(t, err)
	return rec.Fields
}

func TestAddCommand_SignedInUser(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cart.db")

	out, _, err := runCommand(NewAddCommand(&RootOptions{Format: "json"}),
		"--db", db, "--name", "Running Shoes", "--price", "29.99", "--sku", "1001", "--user", "alice")
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   AddResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.NotEmpty(t, resp.Data.Key)
	assert.Equal(t, "alice", resp.Data.Item.AddedBy)

	fields := readFields(t, db, resp.Data.Key)
	assert.Equal(t, ir.String("alice"), fields[ir.FieldAddedBy])
	assert.Equal(t, ir.String("Running Shoes"), fields[cart.FieldName])
	assert.Equal(t, ir.Int(1001), fields[cart.FieldSKU])
	assert.Equal(t, ir.Int(1), fields[cart.FieldQuantity])
}

func TestAddCommand_Anonymous(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cart.db")

	out, _, err := runCommand(NewAddCommand(&RootOptions{Format: "text"}),
		"--db", db, "--name", "Sun Hat", "--price", "12.5")
	require.NoError(t, err)
	assert.Contains(t, out, "Sun Hat $12.50")

	key := strings.Fields(out)[0]
	assert.Equal(t, ir.String(cart.AnonymousUser), readFields(t, db, key)[ir.FieldAddedBy])
}

func TestAddCommand_NoAddedBy(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cart.db")

	out, _, err := runCommand(NewAddCommand(&RootOptions{Format: "text"}),
		"--db", db, "--name", "Water Bottle", "--no-added-by")
	require.NoError(t, err)

	key := strings.Fields(out)[0]
	assert.False(t, readFields(t, db, key).Has(ir.FieldAddedBy))
}

func TestAddCommand_Validation(t *testing.T) {
	_, _, err := runCommand(NewAddCommand(&RootOptions{Format: "text"}), "--price", "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "name" not set`)

	_, _, err = runCommand(NewAddCommand(&RootOptions{Format: "text"}),
		"--db", filepath.Join(t.TempDir(), "cart.db"), "--name", "x", "--quantity", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestListCommand(t *testing.T) {
	db := seedDB(t,
		"k1", item("Shoes", "alice"),
		"k2", "not a mapping",
	)

	out, _, err := runCommand(NewListCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "k1\t1\t{"))
	assert.Equal(t, "k2\t2\t\"not a mapping\"", lines[1])

	out, _, err = runCommand(NewListCommand(&RootOptions{Format: "json"}), "--db", db)
	require.NoError(t, err)
	var resp struct {
		Data []ListedRecord `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "k1", resp.Data[0].Key)
	assert.JSONEq(t, `"not a mapping"`, string(resp.Data[1].Value))
}

func TestListCommand_Empty(t *testing.T) {
	db := filepath.Join(t.TempDir(), "cart.db")
	out, _, err := runCommand(NewListCommand(&RootOptions{Format: "text"}), "--db", db, "--collection", "wishlist")
	require.NoError(t, err)
	assert.Contains(t, out, "No records in wishlist.")
}
