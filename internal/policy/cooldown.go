package policy

import (
	"time"

	"RefreshSentinel/internal/model"
)

const (
	DefaultCooldownBase = 5 * time.Minute
	DefaultCooldownMax  = 24 * time.Hour
)

// Cooldown is the failure backoff policy: Base * 2^(failures-1), capped at Max.
type Cooldown struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultCooldown returns the 5 minute base, 24 hour cap policy.
func DefaultCooldown() Cooldown {
	return Cooldown{Base: DefaultCooldownBase, Max: DefaultCooldownMax}
}

// Duration returns the backoff after failures consecutive failures.
func (c Cooldown) Duration(failures int) time.Duration {
	if failures <= 0 || c.Base <= 0 {
		return 0
	}
	max := c.Max
	if max <= 0 {
		max = DefaultCooldownMax
	}
	d := c.Base
	for i := 1; i < failures; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}

// Until returns when the cooldown started by lastAttempt ends.
func (c Cooldown) Until(lastAttempt time.Time, failures int) time.Time {
	return lastAttempt.Add(c.Duration(failures))
}

// Active reports whether the symbol is still inside its cooldown window.
// A symbol that has never been attempted cannot be in cooldown.
func (c Cooldown) Active(s model.SymbolState, now time.Time) (bool, time.Time) {
	if s.LastAttempt == nil || s.FailureCount <= 0 {
		return false, time.Time{}
	}
	until := c.Until(*s.LastAttempt, s.FailureCount)
	return now.Before(until), until
}

// StatusFor derives a symbol status from its consecutive failure count.
// failingAfter is the count at which a symbol stops being degraded.
func StatusFor(failures, failingAfter int) model.Status {
	if failingAfter < 1 {
		failingAfter = 1
	}
	switch {
	case failures <= 0:
		return model.StatusHealthy
	case failures < failingAfter:
		return model.StatusDegraded
	default:
		return model.StatusFailing
	}
}
