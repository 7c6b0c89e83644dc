package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RefreshSentinel/internal/model"
)

func TestInterval_Table(t *testing.T) {
	cases := map[int]time.Duration{
		5: 15 * time.Minute,
		4: time.Hour,
		3: 6 * time.Hour,
		2: 24 * time.Hour,
		1: 7 * 24 * time.Hour,
	}
	for p, want := range cases {
		assert.Equal(t, want, Interval(p), "priority %d", p)
	}
}

func TestInterval_NonIncreasing(t *testing.T) {
	for p := MinPriority; p < MaxPriority; p++ {
		assert.LessOrEqual(t, Interval(p+1), Interval(p), "interval(%d) > interval(%d)", p+1, p)
	}
}

func TestInterval_PanicsOutOfRange(t *testing.T) {
	assert.Panics(t, func() { Interval(0) })
	assert.Panics(t, func() { Interval(6) })
}

func TestClampAndLabel(t *testing.T) {
	assert.Equal(t, 1, Clamp(-3))
	assert.Equal(t, 5, Clamp(9))
	assert.Equal(t, 3, Clamp(3))
	assert.Equal(t, "HIGH", Label(5))
	assert.Equal(t, "HIGH", Label(4))
	assert.Equal(t, "MEDIUM", Label(3))
	assert.Equal(t, "LOW", Label(2))
	assert.Equal(t, "LOW", Label(1))
}

func TestCooldown_Duration(t *testing.T) {
	c := DefaultCooldown()
	assert.Equal(t, time.Duration(0), c.Duration(0))
	assert.Equal(t, 5*time.Minute, c.Duration(1))
	assert.Equal(t, 10*time.Minute, c.Duration(2))
	assert.Equal(t, 20*time.Minute, c.Duration(3))
	assert.Equal(t, 24*time.Hour, c.Duration(20))
	assert.Equal(t, 24*time.Hour, c.Duration(1_000_000))
}

func TestCooldown_CappedAndMonotonic(t *testing.T) {
	c := DefaultCooldown()
	prev := time.Duration(0)
	for f := 0; f <= 200; f++ {
		d := c.Duration(f)
		require.LessOrEqual(t, d, 24*time.Hour, "failures=%d", f)
		require.GreaterOrEqual(t, d, prev, "failures=%d", f)
		prev = d
	}
}

func TestCooldown_Active(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	c := DefaultCooldown()

	never := model.NewSymbolState("NEW", 3)
	never.FailureCount = 4
	active, _ := c.Active(never, now)
	assert.False(t, active, "never attempted symbol cannot be in cooldown")

	s := model.NewSymbolState("Z", 3)
	s.FailureCount = 3
	s.LastAttempt = model.TimePtr(now.Add(-30 * time.Minute))
	active, until := c.Active(s, now)
	assert.False(t, active, "20m cooldown elapsed after 30m")
	assert.Equal(t, now.Add(-10*time.Minute), until)

	s.LastAttempt = model.TimePtr(now.Add(-10 * time.Minute))
	active, until = c.Active(s, now)
	assert.True(t, active)
	assert.Equal(t, now.Add(10*time.Minute), until)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, model.StatusHealthy, StatusFor(0, 2))
	assert.Equal(t, model.StatusDegraded, StatusFor(1, 2))
	assert.Equal(t, model.StatusFailing, StatusFor(2, 2))
	assert.Equal(t, model.StatusFailing, StatusFor(9, 2))
	assert.Equal(t, model.StatusFailing, StatusFor(1, 0))
}
