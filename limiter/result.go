package limiter

import "time"

// Decision is the outcome of an admission check.
type Decision uint8

const (
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Result describes an admission decision and the state of the bucket after it.
type Result struct {
	Decision  Decision
	Limit     Limit     // limit the request was checked against
	Remaining int64     // requests left in the current window
	ResetAt   time.Time // end of the current window
}

// Allowed reports whether the request may proceed.
func (r Result) Allowed() bool {
	return r.Decision == Allow
}

// RetryAfter returns how long a denied caller should wait, zero when allowed.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() || r.ResetAt.IsZero() {
		return 0
	}
	if d := r.ResetAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// Err returns ErrRateLimited for a Deny and nil for an Allow.
func (r Result) Err() error {
	if r.Allowed() {
		return nil
	}
	return ErrRateLimited
}
