package recorder

import (
	"time"

	"RefreshSentinel/internal/model"
)

// OutcomeEvent records how an executor outcome landed in the registry.
type OutcomeEvent struct {
	Outcome      model.Outcome
	FailureCount int
	Status       model.Status
	Recovered    bool // success after failures, recovery boost granted
	LostUpdate   bool // compare-and-swap retries exhausted, nothing written
	RecordedAt   time.Time
}

// Recorder persists run history for analysis.
type Recorder interface {
	RecordRun(sum *model.RunSummary) error
	RecordDecisions(runID string, decisions []model.Decision) error
	RecordOutcome(evt *OutcomeEvent) error
	Close() error
}
