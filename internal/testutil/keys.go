package testutil

import (
	"fmt"
	"sync"
)

// SequentialKeys generates keys "<prefix>1", "<prefix>2", ... for tests.
//
// Unlike store.FixedGenerator it never runs out, and Reset lets the same
// scenario run again with identical keys.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SequentialKeys struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequentialKeys creates a generator. An empty prefix means "k".
func NewSequentialKeys(prefix string) *SequentialKeys {
	if prefix == "" {
		prefix = "k"
	}
	return &SequentialKeys{prefix: prefix}
}

// Generate returns the next key.
//
// Implements store.KeyGenerator.
func (g *SequentialKeys) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s%d", g.prefix, g.n), nil
}

// Reset restarts numbering at 1.
func (g *SequentialKeys) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
