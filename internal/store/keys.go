package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// KeyGenerator generates child keys for Push.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type KeyGenerator interface {
	Generate() (string, error)
}

// UUIDv7Generator generates time-sortable UUIDv7 keys.
//
// UUIDv7 embeds a timestamp in the most significant bits, so pushed keys
// sort roughly by creation time, like realtime-database push IDs.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
func (UUIDv7Generator) Generate() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return id.String(), nil
}

// FixedGenerator returns predetermined keys for testing.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewFixedGenerator creates a generator that returns keys in order.
func NewFixedGenerator(keys ...string) *FixedGenerator {
	return &FixedGenerator{keys: keys}
}

// Generate returns the next predetermined key.
// Returns an error once all keys have been consumed, which surfaces test
// misconfiguration as a failed Push.
func (g *FixedGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.keys) {
		return "", fmt.Errorf("FixedGenerator: all %d keys exhausted", len(g.keys))
	}
	key := g.keys[g.idx]
	g.idx++
	return key, nil
}
