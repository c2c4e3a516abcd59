package core

import "time"

// RateLimitState captures the governor's admission state.
//
// Steady and Burst hold the dispatch timestamps still inside their sliding
// windows, oldest first.
type RateLimitState struct {
	Steady       []time.Time
	Burst        []time.Time
	BackoffUntil map[string]time.Time
	Last429At    *time.Time

	// Last values reported by the service, kept for diagnostics.
	Remaining int
	ResetAt   *time.Time
}

// NewRateLimitState returns an empty state ready for use.
func NewRateLimitState() *RateLimitState {
	return &RateLimitState{BackoffUntil: make(map[string]time.Time)}
}
