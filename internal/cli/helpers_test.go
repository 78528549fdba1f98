package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/roach88/recordsync/internal/store"
)

const testCollection = "shoppingCartItems"

// runCommand executes cmd with args and returns stdout and stderr.
func runCommand(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

// seedDB writes values under explicit keys, in order, and returns the path.
func seedDB(t *testing.T, pairs ...any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cart.db")
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	for i := 0; i+1 < len(pairs); i += 2 {
		require.NoError(t, st.SetValue(context.Background(), testCollection, pairs[i].(string), pairs[i+1]))
	}
	return path
}

// listKeys returns the keys stored in the test collection.
func listKeys(t *testing.T, path string) []string {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()

	nodes, err := st.List(context.Background(), testCollection)
	require.NoError(t, err)
	keys := make([]string, 0, len(nodes))
	for _, n := range nodes {
		keys = append(keys, n.Key)
	}
	return keys
}

// writeRulesDir writes CUE files into a fresh directory.
func writeRulesDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func item(name string, addedBy any) map[string]any {
	v := map[string]any{"name": name, "price": 9.99, "sku": 1, "quantity": 1}
	if addedBy != nil {
		v["addedBy"] = addedBy
	}
	return v
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
