package harness

import "github.com/roach88/recordsync/internal/ir"

// Trace event types.
const (
	EventObserved = "observed" // a child-added event reached the watcher
	EventAnomaly  = "anomaly"  // the watcher reported an invalid record
	EventRemove   = "remove"   // the watcher deleted a record
	EventPatch    = "patch"    // the watcher merged patch values into a record
)

// TraceEvent is one step of a scenario run.
type TraceEvent struct {
	Type   string    `json:"type"`
	Key    string    `json:"key"`
	Seq    int64     `json:"seq"` // store seq of the triggering child event
	Replay bool      `json:"replay,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Rule   string    `json:"rule,omitempty"`
	Patch  ir.Fields `json:"patch,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expectations match.
	Pass bool `json:"pass"`

	// Trace contains observed events, anomalies and repair writes, each
	// write right after the anomaly that queued it.
	Trace []TraceEvent `json:"trace"`

	// Errors contains expectation mismatches.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Anomalies are the reported anomalies in report order.
	Anomalies []ir.Anomaly `json:"anomalies"`

	// Remaining are the keys left in the collection, in insertion order.
	Remaining []string `json:"remaining"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		Anomalies: []ir.Anomaly{},
		Remaining: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AnomalyIDs returns the reported record IDs in order.
func (r *Result) AnomalyIDs() []string {
	ids := make([]string, 0, len(r.Anomalies))
	for _, a := range r.Anomalies {
		ids = append(ids, a.ID)
	}
	return ids
}
