// Package metrics exports Prometheus counters and histograms for version
// and run engine operations.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide metrics registry, building it on first use.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// Registry holds every taleforge metric and the prometheus.Gatherer they're
// registered against.
type Registry struct {
	gatherer *prometheus.Registry

	versionOps       *prometheus.CounterVec
	versionOpLatency *prometheus.HistogramVec
	runOps           *prometheus.CounterVec
	versionRefCount  *prometheus.GaugeVec
}

// NewRegistry builds a Registry with its metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		gatherer: reg,
		versionOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taleforge",
			Subsystem: "version",
			Name:      "operations_total",
			Help:      "Version Engine operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		versionOpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taleforge",
			Subsystem: "version",
			Name:      "operation_duration_seconds",
			Help:      "Version Engine operation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		runOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taleforge",
			Subsystem: "run",
			Name:      "operations_total",
			Help:      "Run Engine operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		versionRefCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "taleforge",
			Subsystem: "version",
			Name:      "ref_count",
			Help:      "Current reference count of a version.",
		}, []string{"version_id"}),
	}
	reg.MustRegister(r.versionOps, r.versionOpLatency, r.runOps, r.versionRefCount)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.gatherer
}

// ObserveVersionOp records a Version Engine operation's outcome and latency.
func (r *Registry) ObserveVersionOp(operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.versionOps.WithLabelValues(operation, outcome).Inc()
	r.versionOpLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveRunOp records a Run Engine operation's outcome.
func (r *Registry) ObserveRunOp(operation string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	r.runOps.WithLabelValues(operation, outcome).Inc()
}

// SetVersionRefCount reports a version's current reference count.
func (r *Registry) SetVersionRefCount(versionID string, count int64) {
	r.versionRefCount.WithLabelValues(versionID).Set(float64(count))
}
