package model

import (
	"fmt"
	"time"
)

// Action is the per-symbol outcome of a scheduling pass.
type Action string

const (
	ActionRun  Action = "RUN"
	ActionSkip Action = "SKIP"
)

// ReasonCode is the closed set of explanations attached to a decision.
type ReasonCode int

const (
	ReasonUnknown ReasonCode = iota
	ReasonCooldownActive
	ReasonNeverRefreshed
	ReasonStalenessReached
	ReasonFresh
	ReasonBudgetExhausted
	ReasonRunAborted
	ReasonEvaluationError
)

var reasonNames = map[ReasonCode]string{
	ReasonUnknown:          "unknown",
	ReasonCooldownActive:   "cooldown_active",
	ReasonNeverRefreshed:   "never_refreshed",
	ReasonStalenessReached: "staleness_reached",
	ReasonFresh:            "fresh",
	ReasonBudgetExhausted:  "budget_exhausted",
	ReasonRunAborted:       "run_aborted",
	ReasonEvaluationError:  "evaluation_error",
}

// Name is the low-cardinality identifier used for metrics and storage.
func (c ReasonCode) Name() string {
	if n, ok := reasonNames[c]; ok {
		return n
	}
	return reasonNames[ReasonUnknown]
}

// Reason carries a code plus the structured fields its text needs.
type Reason struct {
	Code     ReasonCode
	Priority int       // StalenessReached
	At       time.Time // CooldownActive: retry after; Fresh: next eligible
	Rank     int       // BudgetExhausted
	Of       int       // BudgetExhausted
	Detail   string    // EvaluationError
}

// String renders the reason as it appears in the decision log.
func (r Reason) String() string {
	switch r.Code {
	case ReasonCooldownActive:
		return "cooldown active, retry after " + r.At.UTC().Format(time.RFC3339)
	case ReasonNeverRefreshed:
		return "never refreshed"
	case ReasonStalenessReached:
		return fmt.Sprintf("staleness threshold reached for priority %d", r.Priority)
	case ReasonFresh:
		return "fresh: next eligible at " + r.At.UTC().Format(time.RFC3339)
	case ReasonBudgetExhausted:
		return fmt.Sprintf("budget exhausted, rank %d of %d", r.Rank, r.Of)
	case ReasonRunAborted:
		return "run aborted"
	case ReasonEvaluationError:
		return "evaluation error: " + r.Detail
	}
	return "unknown"
}

// Decision is the verdict for one symbol in one run.
type Decision struct {
	Symbol            string
	Action            Action
	EffectivePriority int
	// Staleness is meaningful only when NeverRefreshed is false.
	Staleness      time.Duration
	NeverRefreshed bool
	Reason         Reason
}

// LogLine renders the audit line operators grep for.
func (d Decision) LogLine() string {
	return fmt.Sprintf("[refresh] %s %s (priority=%d): %s", d.Action, d.Symbol, d.EffectivePriority, d.Reason)
}

// Skip returns a copy of d demoted to SKIP with the given reason.
func (d Decision) Skip(r Reason) Decision {
	d.Action = ActionSkip
	d.Reason = r
	return d
}
