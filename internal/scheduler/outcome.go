package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RefreshSentinel/internal/boost"
	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/notifier"
	"RefreshSentinel/internal/policy"
	"RefreshSentinel/internal/recorder"
	"RefreshSentinel/internal/registry"
)

// applyOutcome mutates s for one executor report and reports whether the
// symbol recovered from earlier failures.
func applyOutcome(s *model.SymbolState, o model.Outcome, failingAfter int) (recovered bool, err error) {
	at := o.Timestamp
	// Reports can arrive out of order; attempt and refresh times never move back.
	if s.LastAttempt == nil || at.After(*s.LastAttempt) {
		s.LastAttempt = model.TimePtr(at)
	}

	switch o.Outcome {
	case model.OutcomeSuccess:
		if s.LastRefreshed == nil || at.After(*s.LastRefreshed) {
			s.LastRefreshed = model.TimePtr(at)
		}
		recovered = s.FailureCount > 0
		s.FailureCount = 0
		s.Status = model.StatusHealthy
		if recovered {
			s.Boosts = append(s.Boosts, boost.Recovery(at))
		}
	case model.OutcomeFailure:
		s.FailureCount++
		s.Status = policy.StatusFor(s.FailureCount, failingAfter)
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidOutcome, o.Outcome)
	}
	return recovered, nil
}

// ApplyOutcome writes an executor report back to the registry with bounded
// compare-and-swap retries. When the write cannot be made the loss is logged,
// counted and pushed to the operator, and the returned error wraps
// registry.ErrLostUpdate.
func (r *Runner) ApplyOutcome(ctx context.Context, o model.Outcome) error {
	o.Symbol = model.NormalizeSymbol(o.Symbol)
	if o.Symbol == "" {
		return fmt.Errorf("%w: empty symbol", ErrInvalidOutcome)
	}
	if o.Outcome != model.OutcomeSuccess && o.Outcome != model.OutcomeFailure {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, o.Outcome)
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = r.Now()
	}

	rctx, cancel := r.withTimeout(ctx, r.cfg.RegistryTimeout)
	defer cancel()

	var recovered bool
	st, err := registry.Update(rctx, r.Store, o.Symbol, r.cfg.OutcomeRetries, func(s *model.SymbolState) (bool, error) {
		var err error
		recovered, err = applyOutcome(s, o, r.cfg.FailingAfter)
		return err == nil, err
	})
	if errors.Is(err, registry.ErrNotFound) {
		return fmt.Errorf("apply outcome: %w: %s", registry.ErrNotFound, o.Symbol)
	}
	if err != nil {
		r.lostUpdate(ctx, o, err)
		return fmt.Errorf("%w: %s %s: %w", registry.ErrLostUpdate, o.Symbol, o.Outcome, err)
	}

	r.Metrics.ObserveOutcome(o.Outcome)
	r.Log.Info().
		Str("symbol", st.Symbol).
		Str("outcome", string(o.Outcome)).
		Int("failure_count", st.FailureCount).
		Str("status", string(st.Status)).
		Bool("recovered", recovered).
		Msgf("[refresh] outcome %s %s: failures=%d status=%s", st.Symbol, o.Outcome, st.FailureCount, st.Status)

	if err := r.Recorder.RecordOutcome(&recorder.OutcomeEvent{
		Outcome:      o,
		FailureCount: st.FailureCount,
		Status:       st.Status,
		Recovered:    recovered,
		RecordedAt:   r.Now(),
	}); err != nil {
		r.Log.Error().Err(err).Msg("record outcome")
	}
	return nil
}

// OnOutcome adapts ApplyOutcome to the executor callback. Errors are already
// logged and alerted by ApplyOutcome.
func (r *Runner) OnOutcome(ctx context.Context, o model.Outcome) {
	_ = r.ApplyOutcome(ctx, o)
}

func (r *Runner) lostUpdate(ctx context.Context, o model.Outcome, err error) {
	r.Metrics.ObserveLostUpdate()
	r.Log.Error().
		Err(err).
		Str("symbol", o.Symbol).
		Str("outcome", string(o.Outcome)).
		Time("timestamp", o.Timestamp).
		Msgf("[refresh] lost update for %s", o.Symbol)

	if rerr := r.Recorder.RecordOutcome(&recorder.OutcomeEvent{
		Outcome:    o,
		LostUpdate: true,
		RecordedAt: r.Now(),
	}); rerr != nil {
		r.Log.Error().Err(rerr).Msg("record lost update")
	}

	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Minute)
	defer cancel()
	if aerr := r.Alerter.Alert(actx, notifier.FormatLostUpdate(o, err)); aerr != nil {
		r.Log.Error().Err(aerr).Str("symbol", o.Symbol).Msg("send lost update alert")
	}
}
