// Package metrics counts filter decisions for one invocation. Each Metrics
// owns its registry, so concurrent runtimes in one process never share
// counters. Results are written as a Prometheus textfile for a node
// exporter to pick up.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "toolwarden"

type Metrics struct {
	registry   *prometheus.Registry
	decisions  *prometheus.CounterVec
	failures   *prometheus.CounterVec
	detections *prometheus.CounterVec
	alerts     *prometheus.CounterVec
	riskScore  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Filter decisions by filter and action",
			},
			[]string{"filter", "action"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "filter_failures_total",
				Help:      "Filter failures resolved by the filter's failure mode",
			},
			[]string{"filter", "mode"},
		),
		detections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "detections_total",
				Help:      "Sensitive values redacted from responses",
			},
			[]string{"category", "label"},
		),
		alerts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "alerts_total",
				Help:      "Audit alerts raised by type",
			},
			[]string{"type"},
		),
		riskScore: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "risk_score",
				Help:      "Total request risk computed by the injection guard",
				Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			},
		),
	}
	m.registry.MustRegister(m.decisions, m.failures, m.detections, m.alerts, m.riskScore)
	return m
}

// Registry exposes the registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Decision(filter, action string) {
	m.decisions.WithLabelValues(filter, action).Inc()
}

func (m *Metrics) Failure(filter, mode string) {
	m.failures.WithLabelValues(filter, mode).Inc()
}

func (m *Metrics) Detection(category, label string) {
	m.detections.WithLabelValues(category, label).Inc()
}

func (m *Metrics) Alert(alertType string) {
	m.alerts.WithLabelValues(alertType).Inc()
}

func (m *Metrics) RiskScore(score float64) {
	m.riskScore.Observe(score)
}

// WriteFile writes the registry in text exposition format. An empty path is
// a no-op.
func (m *Metrics) WriteFile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
