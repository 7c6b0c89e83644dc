// Package executor hands admitted batches to the ingestion pipeline and
// reports one outcome per symbol.
package executor

import (
	"context"
	"sync"
	"time"

	"RefreshSentinel/internal/model"
)

// OutcomeFunc receives the result of refreshing one symbol. It may be
// called from several goroutines at once.
type OutcomeFunc func(ctx context.Context, o model.Outcome)

// Executor accepts an admitted batch. Submit must not wait for the symbols
// to finish refreshing.
type Executor interface {
	Submit(ctx context.Context, batch model.Batch) error
	// Wait blocks until every submitted batch has reported its outcomes.
	Wait()
}

// IngestFunc refreshes a single symbol.
type IngestFunc func(ctx context.Context, symbol string) error

// Mock runs Ingest for each admitted symbol in order on a background
// goroutine and records every batch it was given.
type Mock struct {
	Ingest    IngestFunc
	OnOutcome OutcomeFunc
	Now       func() time.Time

	mu      sync.Mutex
	batches []model.Batch
	wg      sync.WaitGroup
}

func (m *Mock) Submit(ctx context.Context, batch model.Batch) error {
	m.mu.Lock()
	m.batches = append(m.batches, batch)
	m.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for _, sym := range batch.Admitted {
			var err error
			if m.Ingest != nil {
				err = m.Ingest(ctx, sym)
			}
			if m.OnOutcome != nil {
				m.OnOutcome(ctx, outcomeFor(sym, err, m.now()))
			}
		}
	}()
	return nil
}

func (m *Mock) Wait() { m.wg.Wait() }

// Batches returns the batches submitted so far.
func (m *Mock) Batches() []model.Batch {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Batch, len(m.batches))
	copy(out, m.batches)
	return out
}

func (m *Mock) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func outcomeFor(symbol string, err error, at time.Time) model.Outcome {
	o := model.Outcome{Symbol: symbol, Outcome: model.OutcomeSuccess, Timestamp: at}
	if err != nil {
		o.Outcome = model.OutcomeFailure
		o.Message = err.Error()
	}
	return o
}
