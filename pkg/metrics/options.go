package metrics

import (
	"slices"

	"github.com/prometheus/client_golang/prometheus"
)

// Defaults for the router's collectors. Metric names read
// leadrouter_routing_<name>.
const (
	DefaultNamespace = "leadrouter"
	DefaultSubsystem = "routing"
)

// DefaultLatencyBuckets covers routing passes, sweeps and HTTP calls in
// milliseconds.
var DefaultLatencyBuckets = []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics. Empty keeps DefaultNamespace.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem sets the subsystem for all metrics. Empty keeps DefaultSubsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithLatencyBuckets sets the millisecond buckets of latency histograms.
// Non-positive and repeated bounds are dropped; an empty result keeps the
// defaults.
func WithLatencyBuckets(buckets []float64) Option {
	return func(m *Manager) {
		clean := make([]float64, 0, len(buckets))
		for _, b := range buckets {
			if b > 0 {
				clean = append(clean, b)
			}
		}
		slices.Sort(clean)
		clean = slices.Compact(clean)
		if len(clean) > 0 {
			m.histogramBuckets = clean
		}
	}
}

// WithRegistry registers the collectors on registry instead of the default one.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
