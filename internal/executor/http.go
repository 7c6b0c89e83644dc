package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"RefreshSentinel/internal/model"
)

// ErrUnauthorized is returned when the ingest endpoint rejects the API key.
// It is never retried.
var ErrUnauthorized = errors.New("ingest: authentication failed")

// HTTPConfig configures HTTPExecutor.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
	// RatePerSecond <= 0 disables pacing.
	RatePerSecond float64
	Burst         int
	Workers       int
}

// HTTPExecutor posts each admitted symbol to {BaseURL}/admin/ingest.
type HTTPExecutor struct {
	cfg       HTTPConfig
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	onOutcome OutcomeFunc
	now       func() time.Time
	wg        sync.WaitGroup
}

// NewHTTPExecutor builds an executor; onOutcome may be nil.
func NewHTTPExecutor(cfg HTTPConfig, onOutcome OutcomeFunc) *HTTPExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 2
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}

	st := gobreaker.Settings{
		Name:     "ingest",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// a bad key says nothing about endpoint health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrUnauthorized)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}

	return &HTTPExecutor{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(limit, cfg.Burst),
		breaker:   gobreaker.NewCircuitBreaker(st),
		onOutcome: onOutcome,
		now:       time.Now,
	}
}

// SetOutcomeFunc replaces the outcome callback. Call before the first Submit.
func (e *HTTPExecutor) SetOutcomeFunc(fn OutcomeFunc) { e.onOutcome = fn }

// Submit queues the batch and returns immediately. Symbols are started in
// admitted order by at most cfg.Workers goroutines.
func (e *HTTPExecutor) Submit(ctx context.Context, batch model.Batch) error {
	if e.cfg.BaseURL == "" {
		return fmt.Errorf("ingest: base url not configured")
	}
	if len(batch.Admitted) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	jobs := make(chan string)
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer close(jobs)
		for _, sym := range batch.Admitted {
			jobs <- sym
		}
	}()

	for i := 0; i < e.cfg.Workers && i < len(batch.Admitted); i++ {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			for sym := range jobs {
				err := e.Ingest(ctx, sym)
				if err != nil {
					log.Error().Err(err).Str("run_id", batch.RunID).Str("symbol", sym).Msg("ingest failed")
				} else {
					log.Info().Str("run_id", batch.RunID).Str("symbol", sym).Msg("ingest accepted")
				}
				if e.onOutcome != nil {
					e.onOutcome(ctx, outcomeFor(sym, err, e.now()))
				}
			}
		}()
	}
	return nil
}

// Wait blocks until all submitted symbols have reported.
func (e *HTTPExecutor) Wait() { e.wg.Wait() }

// Ingest refreshes one symbol synchronously, through the limiter and breaker.
func (e *HTTPExecutor) Ingest(ctx context.Context, symbol string) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("ingest %s: %w", symbol, err)
	}
	_, err := e.breaker.Execute(func() (any, error) {
		return nil, e.ingestWithRetry(ctx, symbol)
	})
	if err != nil {
		return fmt.Errorf("ingest %s: %w", symbol, err)
	}
	return nil
}

type retryableError struct{ err error }

func (r retryableError) Error() string { return r.err.Error() }
func (r retryableError) Unwrap() error { return r.err }

func (e *HTTPExecutor) ingestWithRetry(ctx context.Context, symbol string) error {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.Attempts; attempt++ {
		err := e.post(ctx, symbol)
		if err == nil {
			return nil
		}
		var re retryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = re.err
		if attempt == e.cfg.Attempts {
			break
		}
		log.Warn().Err(lastErr).Str("symbol", symbol).Int("attempt", attempt).Msg("ingest attempt failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.RetryDelay):
		}
	}
	return fmt.Errorf("all %d attempts failed: %w", e.cfg.Attempts, lastErr)
}

func (e *HTTPExecutor) post(ctx context.Context, symbol string) error {
	body, err := json.Marshal(map[string]string{"symbol": symbol, "mode": "scheduled"})
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/admin/ingest", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("x-api-key", e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return retryableError{fmt.Errorf("network error: %w", err)}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return retryableError{fmt.Errorf("server error: status %d, body: %s", resp.StatusCode, string(respBody))}
	case resp.StatusCode >= 300:
		return fmt.Errorf("ingest rejected: status %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
