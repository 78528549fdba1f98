package watcher

import "github.com/roach88/recordsync/internal/ir"

// Metrics receives watcher counters. Implemented by metrics.Collector.
type Metrics interface {
	EventObserved(collection string)
	ShapeMismatch(collection string)
	AnomalyReported(collection, ruleID string, action ir.Action)
	RepairSkipped(collection, ruleID string)
	WriteCompleted(collection string, action ir.Action)
	WriteFailed(collection string, action ir.Action)
}

type nopMetrics struct{}

func (nopMetrics) EventObserved(string) {}
func (nopMetrics) ShapeMismatch(string) {}
func (nopMetrics) AnomalyReported(string, string, ir.Action) {}
func (nopMetrics) RepairSkipped(string, string) {}
func (nopMetrics) WriteCompleted(string, ir.Action) {}
func (nopMetrics) WriteFailed(string, ir.Action) {}
