// Package health answers whether the ingestion pipeline can take a refresh run.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"RefreshSentinel/internal/model"
)

// Gate reports the pipeline health. Implementations must honour ctx.
// An error means the answer is unknown; callers fail closed.
type Gate interface {
	Check(ctx context.Context) (model.HealthStatus, error)
}

// Static always answers with the same status.
type Static model.HealthStatus

func (s Static) Check(ctx context.Context) (model.HealthStatus, error) {
	if err := ctx.Err(); err != nil {
		return model.HealthUnhealthy, err
	}
	return model.HealthStatus(s), nil
}

// Func adapts a function to Gate.
type Func func(ctx context.Context) (model.HealthStatus, error)

func (f Func) Check(ctx context.Context) (model.HealthStatus, error) { return f(ctx) }

// Snapshot is the body served by the pipeline health endpoint. Only Status
// drives scheduling; the counters are logged.
type Snapshot struct {
	Status  string `json:"status"`
	Symbols struct {
		Stale int `json:"stale"`
	} `json:"symbols"`
	Warnings struct {
		Total int `json:"total"`
	} `json:"warnings"`
}

// HTTPGate polls GET {BaseURL}/admin/health.
type HTTPGate struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

// NewHTTPGate creates a gate against baseURL with the given request timeout.
func NewHTTPGate(baseURL, apiKey string, timeout time.Duration) *HTTPGate {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGate{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

// Check returns unhealthy together with an error for transport failures,
// non-200 answers, undecodable bodies and statuses it does not know.
func (g *HTTPGate) Check(ctx context.Context) (model.HealthStatus, error) {
	snap, err := g.fetch(ctx)
	if err != nil {
		return model.HealthUnhealthy, err
	}
	switch st := model.HealthStatus(strings.ToLower(strings.TrimSpace(snap.Status))); st {
	case model.HealthHealthy, model.HealthDegraded, model.HealthUnhealthy:
		return st, nil
	default:
		return model.HealthUnhealthy, fmt.Errorf("health: unknown status %q", snap.Status)
	}
}

func (g *HTTPGate) fetch(ctx context.Context) (*Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/admin/health", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if g.APIKey != "" {
		req.Header.Set("x-api-key", g.APIKey)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("health request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("health read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health: http_error:%d", resp.StatusCode)
	}

	var snap Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("health decode: %w", err)
	}
	return &snap, nil
}
