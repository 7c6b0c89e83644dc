package recorder

import "RefreshSentinel/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *model.RunSummary) error { return nil }
func (n *NoopRecorder) RecordDecisions(_ string, _ []model.Decision) error { return nil }
func (n *NoopRecorder) RecordOutcome(_ *OutcomeEvent) error { return nil }
func (n *NoopRecorder) Close() error { return nil }
