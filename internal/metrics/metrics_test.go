package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RefreshSentinel/internal/model"
)

func TestMetrics(t *testing.T) {
	m := New()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	m.ObserveDecision(model.Decision{Action: model.ActionRun, Reason: model.Reason{Code: model.ReasonNeverRefreshed}})
	m.ObserveDecision(model.Decision{Action: model.ActionSkip, Reason: model.Reason{Code: model.ReasonBudgetExhausted}})
	m.ObserveDecision(model.Decision{Action: model.ActionSkip, Reason: model.Reason{Code: model.ReasonBudgetExhausted}})
	m.ObserveRun(model.RunSummary{Status: model.RunCompleted, StartedAt: start, FinishedAt: start.Add(time.Second), Admitted: 4})
	m.ObserveRun(model.RunSummary{Status: model.RunSkipped, StartedAt: start, FinishedAt: start})
	m.ObserveOutcome(model.OutcomeFailure)
	m.ObserveLostUpdate()
	m.ObserveHealth(model.HealthDegraded)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Decisions.WithLabelValues("SKIP", "budget_exhausted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("RUN", "never_refreshed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Runs.WithLabelValues("skipped")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.LastAdmitted), "skipped runs leave the gauge alone")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LostUpdates))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HealthChecks.WithLabelValues("degraded")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "refresh_lost_updates_total 1")
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveDecision(model.Decision{})
	m.ObserveRun(model.RunSummary{})
	m.ObserveOutcome(model.OutcomeSuccess)
	m.ObserveLostUpdate()
	m.ObserveHealth(model.HealthHealthy)
}
