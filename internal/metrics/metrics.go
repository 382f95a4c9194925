// Package metrics exposes solve attempts and pointing offsets as Prometheus
// metrics for a node-exporter textfile collector.
//
// Every run replaces the textfile, so all series describe the last run only
// and are exported as gauges. Rates across runs come from the scrapes.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "astrocorr"

// Metrics owns a private registry so one-shot runs export only their own series
type Metrics struct {
	registry *prometheus.Registry

	attempts    *prometheus.GaugeVec
	duration    *prometheus.GaugeVec
	offset      *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
	state       *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_solve_attempts",
			Help:      "Plate solve attempts made by the last run.",
		}, []string{"strategy", "outcome"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_solve_duration_seconds",
			Help:      "Time spent on plate solve attempts by the last run.",
		}, []string{"strategy", "outcome"}),
		offset: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pointing_offset_degrees",
			Help:      "Last computed pointing offset, target minus field centre.",
		}, []string{"axis"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last computed offset.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_state",
			Help:      "Final state of the last run, 1 for the state reached.",
		}, []string{"state"}),
	}

	m.registry.MustRegister(m.attempts, m.duration, m.offset, m.lastSuccess, m.state)
	return m
}

// ObserveAttempt records one solve attempt
func (m *Metrics) ObserveAttempt(strategy, outcome string, elapsed time.Duration) {
	m.attempts.WithLabelValues(strategy, outcome).Inc()
	m.duration.WithLabelValues(strategy, outcome).Add(elapsed.Seconds())
}

// ObserveOffset records a computed offset at time t
func (m *Metrics) ObserveOffset(ra, dec float64, t time.Time) {
	m.offset.WithLabelValues("ra").Set(ra)
	m.offset.WithLabelValues("dec").Set(dec)
	m.lastSuccess.Set(float64(t.UnixNano()) / 1e9)
}

// ObserveRun records the final state of the run
func (m *Metrics) ObserveRun(state string) {
	m.state.Reset()
	m.state.WithLabelValues(state).Set(1)
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile atomically replaces path with the current metric values
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
