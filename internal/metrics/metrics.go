// Package metrics exposes indicator state as Prometheus metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/busylight/internal/indicator"
)

// Metrics reads an Indicator at scrape time. It uses its own registry so
// several daemons' worth of collectors can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	activity       prometheus.GaugeFunc
	visible        prometheus.GaugeFunc
	enabled        prometheus.GaugeFunc
	shown          prometheus.CounterFunc
	hidden         prometheus.CounterFunc
	suppressed     prometheus.CounterFunc
	bridged        prometheus.CounterFunc
	overDecrements prometheus.CounterFunc
}

// New registers collectors for ind.
func New(ind *indicator.Indicator) *Metrics {
	snap := func() indicator.Snapshot { return ind.Snapshot() }

	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activity: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "busylight_activity_count",
			Help: "Current number of outstanding network operations",
		}, func() float64 { return float64(snap().Count) }),
		visible: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "busylight_visible",
			Help: "1 while the debounced busy signal is shown",
		}, func() float64 { return boolToFloat(snap().Visible) }),
		enabled: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "busylight_enabled",
			Help: "1 while debouncing is enabled",
		}, func() float64 { return boolToFloat(snap().Enabled) }),
		shown:          transition("shown", func() int { return snap().Counts.Shown }),
		hidden:         transition("hidden", func() int { return snap().Counts.Hidden }),
		suppressed:     outcome("suppressed", func() int { return snap().Counts.Suppressed }),
		bridged:        outcome("bridged", func() int { return snap().Counts.Bridged }),
		overDecrements: prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "busylight_over_decrements_total",
			Help: "Decrements rejected because no activity was outstanding",
		}, func() float64 { return float64(snap().Counts.OverDecrements) }),
	}

	m.registry.MustRegister(
		m.activity, m.visible, m.enabled,
		m.shown, m.hidden, m.suppressed, m.bridged,
		m.overDecrements,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func transition(to string, count func() int) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        "busylight_transitions_total",
		Help:        "Visibility changes of the busy signal by new state",
		ConstLabels: prometheus.Labels{"to": to},
	}, func() float64 { return float64(count()) })
}

// outcome counts debounce episodes that ended without a visibility change.
func outcome(name string, count func() int) prometheus.CounterFunc {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name:        "busylight_debounce_outcomes_total",
		Help:        "Activity bursts absorbed by the debounce delays, by outcome",
		ConstLabels: prometheus.Labels{"outcome": name},
	}, func() float64 { return float64(count()) })
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
