package model

import "time"

// Boost is a temporary priority increment attached to a symbol.
type Boost struct {
	Kind      string    `json:"kind" bson:"kind"`
	Weight    int       `json:"weight" bson:"weight"`
	Source    string    `json:"source" bson:"source"`
	AppliedAt time.Time `json:"applied_at" bson:"applied_at"`
	ExpiresAt time.Time `json:"expires_at" bson:"expires_at"`
}

// Active reports whether the boost still counts at now.
func (b Boost) Active(now time.Time) bool {
	return now.Before(b.ExpiresAt)
}

// BoostRequest is what the boost boundary receives.
type BoostRequest struct {
	Symbol   string `json:"symbol"`
	Kind     string `json:"kind"`
	Weight   int    `json:"weight"`
	TTLHours int    `json:"ttl_hours"`
	Source   string `json:"source"`
}

// BoostResponse is what the boost boundary answers with.
type BoostResponse struct {
	Accepted               bool      `json:"accepted"`
	Symbol                 string    `json:"symbol"`
	EffectivePriority      int       `json:"effective_priority"`
	EffectivePriorityLabel string    `json:"effective_priority_label"`
	ExpiresAt              time.Time `json:"expires_at"`
}
