package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RefreshSentinel/internal/model"
)

func TestSendWithRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var p map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, "42", p["chat_id"])
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("TOKEN", "42", "")
	tn.APIBase = srv.URL
	require.NoError(t, tn.SendWithRetry(context.Background(), "hi", 1))
	assert.EqualValues(t, 2, calls)
}

func TestSendWithRetry_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("T", "1", "")
	tn.APIBase = srv.URL
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := tn.SendWithRetry(ctx, "x", 5)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestPoll_AnswersCommands(t *testing.T) {
	var (
		mu      sync.Mutex
		replies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/botT/getUpdates":
			assert.Equal(t, "7", r.URL.Query().Get("offset"))
			_, _ = w.Write([]byte(`{"ok":true,"result":[{"update_id":7,"message":{"text":" /last "}},{"update_id":8}]}`))
		case "/botT/sendMessage":
			var p map[string]string
			_ = json.NewDecoder(r.Body).Decode(&p)
			mu.Lock()
			replies = append(replies, p["text"])
			mu.Unlock()
		}
	}))
	defer srv.Close()

	tn := NewTelegramNotifier("T", "1", "")
	tn.APIBase = srv.URL
	next, err := tn.poll(context.Background(), srv.Client(), 7, func(_ context.Context, cmd string) string {
		return "got " + cmd
	})
	require.NoError(t, err)
	assert.Equal(t, 9, next)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"got /last"}, replies)
}

func TestFormatters(t *testing.T) {
	at := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	out := FormatRunSummary(&model.RunSummary{RunID: "r1", StartedAt: at, Status: model.RunCompleted, Health: model.HealthHealthy, Admitted: 2, Deferred: 1, Symbols: []string{"A", "B"}})
	assert.Contains(t, out, "Admitted: 2 | Deferred: 1")
	assert.Contains(t, out, "Batch: A, B")

	skipped := FormatRunSummary(&model.RunSummary{RunID: "r2", StartedAt: at, Status: model.RunSkipped, Health: model.HealthUnhealthy, Reason: "unhealthy"})
	assert.Contains(t, skipped, "Reason: unhealthy")
	assert.NotContains(t, skipped, "Admitted")
	assert.Equal(t, "No run recorded yet.", FormatRunSummary(nil))

	lost := FormatLostUpdate(model.Outcome{Symbol: "TCS", Outcome: model.OutcomeFailure, Timestamp: at}, errors.New("conflict <3>"))
	assert.Contains(t, lost, "TCS")
	assert.Contains(t, lost, "conflict &lt;3&gt;")

	s := model.NewSymbolState("INFY", 4)
	assert.Contains(t, FormatSymbol(s, 4, "HIGH"), "Last refreshed: never")
}
