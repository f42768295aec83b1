package limiter

import (
	"context"
	"time"
)

// Store holds buckets and decides on requests against them.
type Store interface {
	// CheckAndUpdate applies one request for key against limit (fixed window)
	// and returns the decision. The read, the check and the update must be
	// atomic per key: concurrent callers on one key must never both spend the
	// same unit of quota.
	// A policy deny is a Result with Decision Deny and a nil error. Any
	// infrastructure fault is returned as a *VerificationError.
	CheckAndUpdate(ctx context.Context, key string, limit Limit) (Result, error)
}

// Bucket is the accounting record of one key for the current window.
type Bucket struct {
	Remaining int64     `json:"remaining"`
	StartedAt time.Time `json:"started_at"`
}

// Expired reports whether the window that started at StartedAt is over.
func (b Bucket) Expired(now time.Time, window time.Duration) bool {
	return now.Sub(b.StartedAt) >= window
}

// take applies one request to b (nil means no bucket yet) and returns the
// bucket to store and the decision. A missing or expired bucket is replaced
// by a full one before the check, so the request that opens a window spends
// its unit like every other.
func take(b *Bucket, now time.Time, limit Limit) (Bucket, Result) {
	var next Bucket
	if b == nil || b.Expired(now, limit.Window) {
		next = Bucket{Remaining: limit.Max, StartedAt: now}
	} else {
		next = *b
	}

	res := Result{
		Decision: Deny,
		Limit:    limit,
		ResetAt:  next.StartedAt.Add(limit.Window),
	}
	if next.Remaining > 0 {
		next.Remaining--
		res.Decision = Allow
	}
	res.Remaining = max(next.Remaining, 0)
	return next, res
}
