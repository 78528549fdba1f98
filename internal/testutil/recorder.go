package testutil

import (
	"sync"

	"github.com/roach88/recordsync/internal/ir"
)

// AnomalyRecorder collects reported anomalies in arrival order.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type AnomalyRecorder struct {
	mu        sync.Mutex
	anomalies []ir.Anomaly
}

// Report appends a. Pass it as a watcher.Reporter.
func (r *AnomalyRecorder) Report(a ir.Anomaly) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.anomalies = append(r.anomalies, a)
}

// Anomalies returns a copy of everything reported so far.
func (r *AnomalyRecorder) Anomalies() []ir.Anomaly {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.Anomaly, len(r.anomalies))
	copy(out, r.anomalies)
	return out
}

// IDs returns the record IDs reported so far, in order.
func (r *AnomalyRecorder) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.anomalies))
	for _, a := range r.anomalies {
		ids = append(ids, a.ID)
	}
	return ids
}

// Len returns the number of anomalies reported.
func (r *AnomalyRecorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.anomalies)
}
