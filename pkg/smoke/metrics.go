package smoke

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
)

// Metrics collects per-invocation results in a private registry so they can
// be dropped into a node_exporter textfile directory by CI.
type Metrics struct {
	registry *prometheus.Registry
	checks   *prometheus.CounterVec
	passed   *prometheus.GaugeVec
	duration *prometheus.GaugeVec
	timedOut *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "uismoke",
			Name:      "checks_total",
			Help:      "Expectation checks by suite and observed state.",
		}, []string{"suite", "state"}),
		passed: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uismoke",
			Name:      "run_passed",
			Help:      "1 if the last run of the suite passed, 0 otherwise.",
		}, []string{"suite"}),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uismoke",
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run of the suite.",
		}, []string{"suite"}),
		timedOut: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "uismoke",
			Name:      "readiness_timed_out",
			Help:      "1 if the readiness condition of the last run timed out.",
		}, []string{"suite"}),
	}
	m.registry.MustRegister(m.checks, m.passed, m.duration, m.timedOut)
	return m
}

func (m *Metrics) Observe(r *RunReport) {
	for _, res := range r.Results {
		m.checks.WithLabelValues(r.Suite, string(res.State)).Inc()
	}
	m.passed.WithLabelValues(r.Suite).Set(lo.Ternary(r.Passed, 1.0, 0.0))
	m.duration.WithLabelValues(r.Suite).Set(r.Duration().Seconds())
	m.timedOut.WithLabelValues(r.Suite).Set(lo.Ternary(r.ReadinessTimedOut, 1.0, 0.0))
}

func (m *Metrics) WriteTextfile(path string) error {
	return errors.Wrapf(prometheus.WriteToTextfile(path, m.registry), "failed to write metrics to %s", path)
}
