// Package metrics exposes scheduler counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"RefreshSentinel/internal/model"
)

// Metrics owns its registry so tests and multiple runners don't collide on
// the global default.
type Metrics struct {
	Registry *prometheus.Registry

	Runs         *prometheus.CounterVec
	Decisions    *prometheus.CounterVec
	Outcomes     *prometheus.CounterVec
	LostUpdates  prometheus.Counter
	RunDuration  prometheus.Histogram
	LastAdmitted prometheus.Gauge
	HealthChecks *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refresh_runs_total",
			Help: "Scheduler runs by terminal status.",
		}, []string{"status"}),
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refresh_decisions_total",
			Help: "Per-symbol decisions by action and reason code.",
		}, []string{"action", "reason"}),
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refresh_outcomes_total",
			Help: "Executor outcomes applied to the registry.",
		}, []string{"outcome"}),
		LostUpdates: f.NewCounter(prometheus.CounterOpts{
			Name: "refresh_lost_updates_total",
			Help: "Outcome writes dropped after compare-and-swap retries ran out.",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "refresh_run_duration_seconds",
			Help:    "Wall time of the decision pass.",
			Buckets: prometheus.DefBuckets,
		}),
		LastAdmitted: f.NewGauge(prometheus.GaugeOpts{
			Name: "refresh_last_run_admitted",
			Help: "Symbols admitted by the most recent run.",
		}),
		HealthChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "refresh_health_checks_total",
			Help: "Health gate answers, errors counted as unhealthy.",
		}, []string{"status"}),
	}
}

// ObserveDecision counts one decision. Safe on a nil receiver.
func (m *Metrics) ObserveDecision(d model.Decision) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(string(d.Action), d.Reason.Code.Name()).Inc()
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(sum model.RunSummary) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(string(sum.Status)).Inc()
	m.RunDuration.Observe(sum.FinishedAt.Sub(sum.StartedAt).Seconds())
	if sum.Status != model.RunSkipped {
		m.LastAdmitted.Set(float64(sum.Admitted))
	}
}

func (m *Metrics) ObserveHealth(st model.HealthStatus) {
	if m == nil {
		return
	}
	m.HealthChecks.WithLabelValues(string(st)).Inc()
}

func (m *Metrics) ObserveOutcome(o model.OutcomeKind) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) ObserveLostUpdate() {
	if m == nil {
		return
	}
	m.LostUpdates.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Timeout: 10 * time.Second})
}
