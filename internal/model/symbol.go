package model

import (
	"fmt"
	"strings"
	"time"
)

// Status is the health of a symbol as seen by the refresh pipeline.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailing  Status = "failing"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusHealthy, StatusDegraded, StatusFailing:
		return true
	}
	return false
}

// SymbolState is the registry record for one tracked symbol.
type SymbolState struct {
	Symbol        string     `json:"symbol" bson:"symbol"`
	BasePriority  int        `json:"base_priority" bson:"base_priority"`
	Status        Status     `json:"status" bson:"status"`
	LastAttempt   *time.Time `json:"last_attempt" bson:"last_attempt"`
	LastRefreshed *time.Time `json:"last_refreshed" bson:"last_refreshed"`
	FailureCount  int        `json:"failure_count" bson:"failure_count"`
	Boosts        []Boost    `json:"boosts" bson:"boosts"`
}

// NormalizeSymbol upper-cases and trims a symbol identifier.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NewSymbolState returns the initial state of a symbol entering the registry.
func NewSymbolState(symbol string, basePriority int) SymbolState {
	return SymbolState{
		Symbol:       NormalizeSymbol(symbol),
		BasePriority: basePriority,
		Status:       StatusHealthy,
		Boosts:       []Boost{},
	}
}

// Clone returns a deep copy so callers can mutate it without aliasing the original.
func (s SymbolState) Clone() SymbolState {
	out := s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		out.LastAttempt = &t
	}
	if s.LastRefreshed != nil {
		t := *s.LastRefreshed
		out.LastRefreshed = &t
	}
	out.Boosts = make([]Boost, len(s.Boosts))
	copy(out.Boosts, s.Boosts)
	return out
}

// Check reports states the decision engine must not act on.
func (s SymbolState) Check() error {
	if s.Symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if s.FailureCount < 0 {
		return fmt.Errorf("negative failure_count %d", s.FailureCount)
	}
	if s.LastRefreshed != nil {
		if s.LastAttempt == nil {
			return fmt.Errorf("last_refreshed set without last_attempt")
		}
		if s.LastRefreshed.After(*s.LastAttempt) {
			return fmt.Errorf("last_refreshed %s after last_attempt %s",
				s.LastRefreshed.Format(time.RFC3339), s.LastAttempt.Format(time.RFC3339))
		}
	}
	if s.Status != "" && !s.Status.Valid() {
		return fmt.Errorf("unknown status %q", s.Status)
	}
	return nil
}

// Staleness is the time since the last successful refresh. ok is false when
// the symbol has never been refreshed.
func (s SymbolState) Staleness(now time.Time) (d time.Duration, ok bool) {
	if s.LastRefreshed == nil {
		return 0, false
	}
	return now.Sub(*s.LastRefreshed), true
}

// TimePtr returns a pointer to a copy of t.
func TimePtr(t time.Time) *time.Time { return &t }
