// Package metrics exposes watcher counters to Prometheus and serves them,
// with a health check, over a small chi router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/recordsync/internal/ir"
)

const namespace = "recordsync"

// Collector holds the watcher counters on a private registry.
//
// Collector implements watcher.Metrics.
type Collector struct {
	registry *prometheus.Registry

	eventsTotal         *prometheus.CounterVec
	shapeMismatchTotal  *prometheus.CounterVec
	anomaliesTotal      *prometheus.CounterVec
	repairsSkippedTotal *prometheus.CounterVec
	writesTotal         *prometheus.CounterVec
}

// NewCollector creates a Collector and registers its counters.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "watcher",
				Name:      "events_total",
				Help:      "Child-added events handled",
			},
			[]string{"collection"},
		),
		shapeMismatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "watcher",
				Name:      "shape_mismatch_total",
				Help:      "Events skipped because the payload is not a mapping",
			},
			[]string{"collection"},
		),
		anomaliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "watcher",
				Name:      "anomalies_total",
				Help:      "Records found violating a rule",
			},
			[]string{"collection", "rule", "action"},
		),
		repairsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "watcher",
				Name:      "repairs_skipped_total",
				Help:      "Patches not reissued for an unchanged payload",
			},
			[]string{"collection", "rule"},
		),
		writesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "watcher",
				Name:      "writes_total",
				Help:      "Repair writes by action and outcome",
			},
			[]string{"collection", "action", "outcome"},
		),
	}
	c.registry.MustRegister(
		c.eventsTotal,
		c.shapeMismatchTotal,
		c.anomaliesTotal,
		c.repairsSkippedTotal,
		c.writesTotal,
	)
	return c
}

// Registry returns the private registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) EventObserved(collection string) {
	c.eventsTotal.WithLabelValues(collection).Inc()
}

func (c *Collector) ShapeMismatch(collection string) {
	c.shapeMismatchTotal.WithLabelValues(collection).Inc()
}

func (c *Collector) AnomalyReported(collection, ruleID string, action ir.Action) {
	c.anomaliesTotal.WithLabelValues(collection, ruleID, string(action)).Inc()
}

func (c *Collector) RepairSkipped(collection, ruleID string) {
	c.repairsSkippedTotal.WithLabelValues(collection, ruleID).Inc()
}

func (c *Collector) WriteCompleted(collection string, action ir.Action) {
	c.writesTotal.WithLabelValues(collection, string(action), "ok").Inc()
}

func (c *Collector) WriteFailed(collection string, action ir.Action) {
	c.writesTotal.WithLabelValues(collection, string(action), "error").Inc()
}
