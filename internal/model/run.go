package model

import (
	"fmt"
	"time"
)

// OutcomeKind is what the executor reports for one refreshed symbol.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// Outcome is an executor report for one symbol of an admitted batch.
type Outcome struct {
	Symbol    string      `json:"symbol"`
	Outcome   OutcomeKind `json:"outcome"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
}

// Batch is the ordered hand-off from a run to the executor.
type Batch struct {
	RunID    string
	Admitted []string
	Skipped  []Decision
}

// HealthStatus is the tri-state answer of the health gate.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// AllowsRun reports whether a run may proceed under this status.
func (h HealthStatus) AllowsRun() bool {
	return h == HealthHealthy || h == HealthDegraded
}

// RunStatus is the terminal outcome of a scheduler run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunSkipped   RunStatus = "skipped"
	RunAborted   RunStatus = "aborted"
	RunFailed    RunStatus = "failed"
)

// RunSummary is the operator-facing result of one run.
type RunSummary struct {
	RunID      string       `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Status     RunStatus    `json:"status"`
	Health     HealthStatus `json:"health"`
	Reason     string       `json:"reason,omitempty"`
	Evaluated  int          `json:"evaluated"`
	Admitted   int          `json:"admitted"`
	Deferred   int          `json:"deferred"`
	Skipped    int          `json:"skipped"`
	Aborted    int          `json:"aborted"`
	Symbols    []string     `json:"symbols"`
	Error      string       `json:"error,omitempty"`
}

// Check reports a summary whose counters do not add up to Evaluated.
func (s RunSummary) Check() error {
	if got := s.Admitted + s.Deferred + s.Skipped + s.Aborted; got != s.Evaluated {
		return fmt.Errorf("run %s: admitted+deferred+skipped+aborted=%d, evaluated=%d", s.RunID, got, s.Evaluated)
	}
	return nil
}

// Line renders the summary as a single log line.
func (s RunSummary) Line() string {
	if s.Status == RunSkipped {
		return fmt.Sprintf("[refresh] run %s skipped, reason %s", s.RunID, s.Reason)
	}
	return fmt.Sprintf("[refresh] run %s %s: admitted=%d deferred=%d skipped=%d aborted=%d",
		s.RunID, s.Status, s.Admitted, s.Deferred, s.Skipped, s.Aborted)
}
