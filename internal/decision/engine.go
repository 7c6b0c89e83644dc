package decision

import (
	"time"

	"RefreshSentinel/internal/boost"
	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/policy"
)

// Engine turns one symbol state into a RUN or SKIP decision.
type Engine struct {
	Cooldown policy.Cooldown
}

// NewEngine returns an engine using the given cooldown policy.
func NewEngine(c policy.Cooldown) *Engine {
	return &Engine{Cooldown: c}
}

// Decide is pure given (state, now). Rules, first match wins:
//  1. failing and inside cooldown -> SKIP CooldownActive
//  2. never refreshed             -> RUN NeverRefreshed
//  3. stale for effective priority -> RUN StalenessReached
//  4. otherwise                   -> SKIP Fresh
//
// A state that fails its consistency check becomes SKIP EvaluationError.
func (e *Engine) Decide(s model.SymbolState, now time.Time) model.Decision {
	d := model.Decision{
		Symbol:            s.Symbol,
		EffectivePriority: boost.EffectivePriority(s, now),
	}
	if err := s.Check(); err != nil {
		d.Action = model.ActionSkip
		d.Reason = model.Reason{Code: model.ReasonEvaluationError, Detail: err.Error()}
		return d
	}

	staleness, refreshed := s.Staleness(now)
	d.Staleness = staleness
	d.NeverRefreshed = !refreshed

	if s.Status == model.StatusFailing {
		if active, until := e.Cooldown.Active(s, now); active {
			d.Action = model.ActionSkip
			d.Reason = model.Reason{Code: model.ReasonCooldownActive, At: until}
			return d
		}
	}

	if !refreshed {
		d.Action = model.ActionRun
		d.Reason = model.Reason{Code: model.ReasonNeverRefreshed}
		return d
	}

	interval := policy.Interval(d.EffectivePriority)
	if staleness >= interval {
		d.Action = model.ActionRun
		d.Reason = model.Reason{Code: model.ReasonStalenessReached, Priority: d.EffectivePriority}
		return d
	}

	d.Action = model.ActionSkip
	d.Reason = model.Reason{Code: model.ReasonFresh, At: s.LastRefreshed.Add(interval)}
	return d
}
