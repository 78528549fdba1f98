package store

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/recordsync/internal/ir"
)

// setupTestStore opens a store in a temp dir, closed on test cleanup.
func setupTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// eventSink collects delivered events for assertions.
type eventSink struct {
	mu     sync.Mutex
	events []ir.ChildEvent
}

func (k *eventSink) handle(e ir.ChildEvent) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.events = append(k.events, e)
}

func (k *eventSink) snapshot() []ir.ChildEvent {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]ir.ChildEvent, len(k.events))
	copy(out, k.events)
	return out
}

func (k *eventSink) keys() []string {
	var keys []string
	for _, e := range k.snapshot() {
		keys = append(keys, e.Key)
	}
	return keys
}

// waitForEvents blocks until the sink holds n events.
func (k *eventSink) waitForEvents(t *testing.T, n int) []ir.ChildEvent {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(k.snapshot()) >= n
	}, 2*time.Second, 5*time.Millisecond, "expected %d events", n)
	return k.snapshot()
}
