// Package metrics defines the Prometheus collectors of the attribute engine.
// All methods are safe to call on a nil *Metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stdattr"

// Compilation sources.
const (
	SourceSpec  = "spec"
	SourceCache = "cache"
)

// Metrics groups the collectors.
type Metrics struct {
	validationFailures *prometheus.CounterVec
	activations        *prometheus.CounterVec
	compilations       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_failures_total",
			Help:      "Standard attribute values rejected by their validator.",
		}, []string{"attribute", "mode", "tolerated"}),
		activations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "activations_total",
			Help:      "Conventions made active.",
		}, []string{"convention"}),
		compilations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compilations_total",
			Help:      "Conventions built, by origin.",
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(m.validationFailures, m.activations, m.compilations)
	}
	return m
}

// ValidationFailed counts a rejected value.
func (m *Metrics) ValidationFailed(attribute, mode string, tolerated bool) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(attribute, mode, strconv.FormatBool(tolerated)).Inc()
}

// Activated counts an activation. The no-schema convention is reported as
// "none".
func (m *Metrics) Activated(convention string) {
	if m == nil {
		return
	}
	if convention == "" {
		convention = "none"
	}
	m.activations.WithLabelValues(convention).Inc()
}

// Compiled counts a convention built from a spec or from the cache.
func (m *Metrics) Compiled(source string) {
	if m == nil {
		return
	}
	m.compilations.WithLabelValues(source).Inc()
}
