// Package models holds the rate limit vocabulary shared by the stores and the
// middleware.
package models

import (
	"math"
	"time"
)

// EndpointClass groups routes that share a per-IP budget.
type EndpointClass string

const (
	// ClassIntake covers form submission.
	ClassIntake EndpointClass = "intake"
	// ClassPayment covers checkout creation and payment verification.
	ClassPayment EndpointClass = "payment"
)

func (c EndpointClass) IsValid() bool {
	return c == ClassIntake || c == ClassPayment
}

// Limit is a sliding-window budget.
type Limit struct {
	RequestsPerWindow int
	Window            time.Duration
}

// Result is the outcome of one Allow call.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter int
}

// NewIPKey scopes a bucket to a client IP within an endpoint class.
func NewIPKey(class EndpointClass, ip string) string {
	return "ip:" + string(class) + ":" + ip
}

// Allowed builds the result for an accepted request. oldest is the earliest
// timestamp still in the window, or the zero time.
func Allowed(limit, used int, oldest, now time.Time, window time.Duration) *Result {
	return &Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: max(limit-used, 0),
		ResetAt:   resetAt(oldest, now, window),
	}
}

// Denied builds the result for a rejected request.
func Denied(limit int, oldest, now time.Time, window time.Duration) *Result {
	reset := resetAt(oldest, now, window)
	return &Result{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    reset,
		RetryAfter: RetryAfterSeconds(now, reset),
	}
}

// RetryAfterSeconds rounds the wait up to whole seconds, never below one.
func RetryAfterSeconds(now, resetAt time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	return max(secs, 1)
}

func resetAt(oldest, now time.Time, window time.Duration) time.Time {
	if oldest.IsZero() {
		return now.Add(window)
	}
	return oldest.Add(window)
}
