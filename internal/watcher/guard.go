package watcher

import "sync"

// repairGuard stops the watcher from patching the same payload of the same
// key twice in a row.
//
// A store that reports overwrites as child-added events echoes every patch
// back to the watcher. The echo of a correct patch satisfies the rule and
// clears the guard; an identical payload arriving again means the patch did
// not take and is not reissued.
//
// Removals bypass the guard: a removal never produces a child-added event.
type repairGuard struct {
	mu   sync.Mutex
	last map[string]string // key -> repair hash of the last patched payload
}

func newRepairGuard() *repairGuard {
	return &repairGuard{last: make(map[string]string)}
}

// WouldRepeat reports whether hash is the last payload patched for key.
func (g *repairGuard) WouldRepeat(key, hash string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last[key] == hash
}

// Record marks hash as patched for key.
func (g *repairGuard) Record(key, hash string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.last[key] = hash
}

// Clear forgets key. Called when any other payload is observed for it.
func (g *repairGuard) Clear(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.last, key)
}
