// Package metrics exposes Prometheus collectors for the store engine and the
// live query layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records operational metrics. A nil *Collector records nothing.
type Collector struct {
	opLatency     *prometheus.HistogramVec
	writes        *prometheus.CounterVec
	subscriptions prometheus.Gauge
	deliveries    prometheus.Counter
	evalFailures  prometheus.Counter
}

// New creates a Collector and registers it with reg. A nil reg leaves the
// collectors unregistered.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "inventory_operation_latency_seconds",
			Help:    "Latency of store engine operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "status"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "inventory_writes_total",
			Help: "Writes processed, by whether they changed state",
		}, []string{"op", "outcome"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "inventory_live_subscriptions",
			Help: "Active live query subscriptions",
		}),
		deliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_live_deliveries_total",
			Help: "Results delivered to live query subscribers",
		}),
		evalFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "inventory_live_eval_failures_total",
			Help: "Failed live query re-evaluations",
		}),
	}

	if reg != nil {
		reg.MustRegister(c.opLatency, c.writes, c.subscriptions, c.deliveries, c.evalFailures)
	}
	return c
}

// ObserveOp records the latency and status of an engine operation.
func (c *Collector) ObserveOp(op string, d time.Duration, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.opLatency.WithLabelValues(op, status).Observe(d.Seconds())
}

// Write counts a successful write. changed is false for ignored inserts and
// updates or deletes of absent records.
func (c *Collector) Write(op string, changed bool) {
	if c == nil {
		return
	}
	outcome := "changed"
	if !changed {
		outcome = "noop"
	}
	c.writes.WithLabelValues(op, outcome).Inc()
}

// SubscriptionOpened increments the active subscription gauge.
func (c *Collector) SubscriptionOpened() {
	if c == nil {
		return
	}
	c.subscriptions.Inc()
}

// SubscriptionClosed decrements the active subscription gauge.
func (c *Collector) SubscriptionClosed() {
	if c == nil {
		return
	}
	c.subscriptions.Dec()
}

// Delivered counts one result handed to a subscriber.
func (c *Collector) Delivered() {
	if c == nil {
		return
	}
	c.deliveries.Inc()
}

// EvalFailed counts one failed re-evaluation.
func (c *Collector) EvalFailed() {
	if c == nil {
		return
	}
	c.evalFailures.Inc()
}
