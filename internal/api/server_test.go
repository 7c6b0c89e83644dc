package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RefreshSentinel/internal/boost"
	"RefreshSentinel/internal/decision"
	"RefreshSentinel/internal/executor"
	"RefreshSentinel/internal/health"
	"RefreshSentinel/internal/metrics"
	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/policy"
	"RefreshSentinel/internal/registry"
	"RefreshSentinel/internal/scheduler"
)

var now = time.Date(2026, 8, 3, 9, 0, 0, 0, time.UTC)

type testServer struct {
	srv   *Server
	store *registry.MemoryStore
	exec  *executor.Mock
}

func newTestServer(t *testing.T, apiKey string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := registry.NewMemoryStore()
	exec := &executor.Mock{Now: func() time.Time { return now }}
	runner := scheduler.NewRunner(scheduler.DefaultConfig(), store, health.Static(model.HealthHealthy), exec,
		decision.NewEngine(policy.DefaultCooldown()), zerolog.Nop())
	runner.Now = func() time.Time { return now }
	runner.NewID = func() string { return "run-api" }

	boosts := boost.NewService(store, time.Second)
	boosts.Now = func() time.Time { return now }

	srv := NewServer(context.Background(), store, boosts, runner, metrics.New(), apiKey)
	srv.Now = func() time.Time { return now }
	return &testServer{srv: srv, store: store, exec: exec}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestAPIKeyRequired(t *testing.T) {
	ts := newTestServer(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/admin/symbols", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/admin/symbols", nil, "x-api-key", "wrong").Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/admin/symbols", nil, "x-api-key", "secret").Code)

	// probes stay open
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/metrics", nil).Code)
}

func TestBoostEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	require.NoError(t, ts.store.Create(context.Background(), model.NewSymbolState("INFY", 3)))

	w := ts.do(t, http.MethodPost, "/admin/boost", model.BoostRequest{Symbol: "infy", Kind: "news", Weight: 2, TTLHours: 6, Source: "admin"})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[model.BoostResponse](t, w)
	assert.True(t, resp.Accepted)
	assert.Equal(t, "INFY", resp.Symbol)
	assert.Equal(t, 5, resp.EffectivePriority)
	assert.Equal(t, now.Add(6*time.Hour), resp.ExpiresAt.UTC())

	view := decode[SymbolView](t, ts.do(t, http.MethodGet, "/admin/symbols/INFY", nil))
	assert.Equal(t, []string{"news"}, view.ActiveBoostKinds)
	assert.Equal(t, "MEDIUM+2", view.EffectivePriorityLabel)

	w = ts.do(t, http.MethodPost, "/admin/boost", model.BoostRequest{Symbol: "INFY", Kind: "news", Weight: 9, TTLHours: 6, Source: "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["accepted"])

	w = ts.do(t, http.MethodPost, "/admin/boost", model.BoostRequest{Symbol: "GHOST", Kind: "news", Weight: 1, TTLHours: 1, Source: "admin"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSymbolEndpoints(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/admin/symbols", map[string]any{"symbol": "tcs", "base_priority": 4})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[SymbolView](t, w)
	assert.Equal(t, "TCS", created.Symbol)
	assert.Equal(t, 4, created.EffectivePriority)

	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/admin/symbols", map[string]any{"symbol": "TCS", "base_priority": 4}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/admin/symbols", map[string]any{"symbol": "X", "base_priority": 7}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/admin/symbols", map[string]any{"base_priority": 2}).Code)

	w = ts.do(t, http.MethodGet, "/admin/symbols/TCS", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[SymbolView](t, w)
	assert.Equal(t, uint64(1), got.Version)
	assert.Equal(t, model.StatusHealthy, got.Status)
	assert.Empty(t, got.ActiveBoostKinds)

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/admin/symbols/NOPE", nil).Code)

	list := decode[struct {
		Symbols []SymbolView `json:"symbols"`
		Count   int          `json:"count"`
	}](t, ts.do(t, http.MethodGet, "/admin/symbols", nil))
	assert.Equal(t, 1, list.Count)
}

func TestOutcomeEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	require.NoError(t, ts.store.Create(context.Background(), model.NewSymbolState("HDFC", 3)))

	w := ts.do(t, http.MethodPost, "/admin/outcomes", model.Outcome{Symbol: "HDFC", Outcome: model.OutcomeFailure, Timestamp: now})
	require.Equal(t, http.StatusOK, w.Code)
	e, err := ts.store.Get(context.Background(), "HDFC")
	require.NoError(t, err)
	assert.Equal(t, 1, e.State.FailureCount)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/admin/outcomes", model.Outcome{Symbol: "HDFC", Outcome: "perhaps"}).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/admin/outcomes", model.Outcome{Symbol: "GHOST", Outcome: model.OutcomeSuccess}).Code)
}

func TestRunEndpoints(t *testing.T) {
	ts := newTestServer(t, "")
	require.NoError(t, ts.store.Create(context.Background(), model.NewSymbolState("A", 3)))

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/admin/runs/last", nil).Code)

	assert.Equal(t, http.StatusAccepted, ts.do(t, http.MethodPost, "/admin/run", nil).Code)
	require.Eventually(t, func() bool {
		return ts.do(t, http.MethodGet, "/admin/runs/last", nil).Code == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	last := decode[model.RunSummary](t, ts.do(t, http.MethodGet, "/admin/runs/last", nil))
	assert.Equal(t, "run-api", last.RunID)
	assert.Equal(t, model.RunCompleted, last.Status)
	assert.Equal(t, []string{"A"}, last.Symbols)
	require.Len(t, ts.exec.Batches(), 1)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/admin/run", "not an object").Code)
}
