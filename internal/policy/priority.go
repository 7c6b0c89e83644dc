package policy

import (
	"fmt"
	"time"
)

const (
	MinPriority = 1
	MaxPriority = 5
)

var intervals = [MaxPriority + 1]time.Duration{
	0,
	7 * 24 * time.Hour, // 1
	24 * time.Hour,     // 2
	6 * time.Hour,      // 3
	time.Hour,          // 4
	15 * time.Minute,   // 5
}

// Interval returns the minimum refresh interval for a priority level.
// Callers clamp first; an out-of-range priority is a programming error.
func Interval(priority int) time.Duration {
	if priority < MinPriority || priority > MaxPriority {
		panic(fmt.Sprintf("policy: priority %d outside [%d,%d]", priority, MinPriority, MaxPriority))
	}
	return intervals[priority]
}

// Clamp forces p into the valid priority range.
func Clamp(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Label names a base priority the way operators refer to it.
func Label(priority int) string {
	switch Clamp(priority) {
	case 5, 4:
		return "HIGH"
	case 3:
		return "MEDIUM"
	default:
		return "LOW"
	}
}
