// Package boost manages temporary priority boosts on registry symbols.
//
// All expiry handling lives in Prune; the rest of the scheduler only ever
// sees active boosts once a run has pruned a symbol.
package boost

import (
	"errors"
	"fmt"
	"time"

	"RefreshSentinel/internal/model"
	"RefreshSentinel/internal/policy"
)

const (
	MaxWeight   = 3
	MaxTTLHours = 48

	RecoveryKind   = "refresh_failure_recovery"
	RecoverySource = "failure_recovery"
	RecoveryWeight = 1
	RecoveryTTL    = time.Hour
)

var (
	ErrPolicyViolation = errors.New("boost policy violation")
	ErrSymbolNotFound  = errors.New("symbol not in registry")
)

// Validate is the admission check done at the boundary, before any registry access.
func Validate(req model.BoostRequest) error {
	if model.NormalizeSymbol(req.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrPolicyViolation)
	}
	if req.Weight < 1 || req.Weight > MaxWeight {
		return fmt.Errorf("%w: weight %d outside [1,%d]", ErrPolicyViolation, req.Weight, MaxWeight)
	}
	if req.TTLHours < 1 || req.TTLHours > MaxTTLHours {
		return fmt.Errorf("%w: ttl_hours %d outside [1,%d]", ErrPolicyViolation, req.TTLHours, MaxTTLHours)
	}
	return nil
}

// New builds the boost record for a validated request.
func New(req model.BoostRequest, now time.Time) model.Boost {
	kind := req.Kind
	if kind == "" {
		kind = "manual"
	}
	source := req.Source
	if source == "" {
		source = "admin"
	}
	return model.Boost{
		Kind:      kind,
		Weight:    req.Weight,
		Source:    source,
		AppliedAt: now,
		ExpiresAt: now.Add(time.Duration(req.TTLHours) * time.Hour),
	}
}

// Apply validates req and appends the resulting boost to s. On error s is untouched.
func Apply(s *model.SymbolState, req model.BoostRequest, now time.Time) (model.Boost, error) {
	if err := Validate(req); err != nil {
		return model.Boost{}, err
	}
	b := New(req, now)
	s.Boosts = append(s.Boosts, b)
	return b, nil
}

// Prune drops every boost with ExpiresAt <= now and reports whether any were
// removed. Pruning an already pruned state is a no-op.
func Prune(s *model.SymbolState, now time.Time) bool {
	kept := make([]model.Boost, 0, len(s.Boosts))
	for _, b := range s.Boosts {
		if b.Active(now) {
			kept = append(kept, b)
		}
	}
	changed := len(kept) != len(s.Boosts)
	s.Boosts = kept
	return changed
}

// ActiveWeight sums the weights of boosts still active at now.
func ActiveWeight(s model.SymbolState, now time.Time) int {
	total := 0
	for _, b := range s.Boosts {
		if b.Active(now) && b.Weight > 0 {
			total += b.Weight
		}
	}
	return total
}

// EffectivePriority is clamp(base + active weights, 1, 5). Boosts stack
// additively regardless of kind or source; the clamp is the only saturation.
func EffectivePriority(s model.SymbolState, now time.Time) int {
	return policy.Clamp(s.BasePriority + ActiveWeight(s, now))
}

// Label renders the base priority label plus active boost weight, e.g. "HIGH+1".
func Label(s model.SymbolState, now time.Time) string {
	base := policy.Label(s.BasePriority)
	if w := ActiveWeight(s, now); w > 0 {
		return fmt.Sprintf("%s+%d", base, w)
	}
	return base
}

// Kinds lists the kinds of active boosts, in insertion order.
func Kinds(s model.SymbolState, now time.Time) []string {
	var out []string
	for _, b := range s.Boosts {
		if b.Active(now) {
			out = append(out, b.Kind)
		}
	}
	return out
}

// Recovery is the boost granted when a symbol succeeds after failing.
func Recovery(now time.Time) model.Boost {
	return model.Boost{
		Kind:      RecoveryKind,
		Weight:    RecoveryWeight,
		Source:    RecoverySource,
		AppliedAt: now,
		ExpiresAt: now.Add(RecoveryTTL),
	}
}
