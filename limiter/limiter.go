// Package limiter decides whether a request may proceed under the fixed-window
// limit configured for its route.
//
// A Matcher maps (method, path) to a Limit, a Store keeps one Bucket per
// identity and path, and a Limiter puts the two together:
//
//	matcher, err := limiter.NewMatcher(limiter.DefaultLimit(),
//		limiter.Rule{Route: limiter.MustRoute("/greeting/[a-z]+", "POST", true), Limit: limiter.Limit{Window: 5 * time.Second, Max: 1}},
//	)
//	l := limiter.New(matcher, limiter.NewMemoryStore())
//
//	res, err := l.Admit(ctx, clientIP, r.Method, r.URL.Path)
//	switch {
//	case err != nil:
//		// store unavailable: fail open or closed, the caller decides
//	case !res.Allowed():
//		// 429
//	}
package limiter

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Limiter combines route matching and bucket accounting. It keeps no state of
// its own and is safe for concurrent use as long as its Store is.
type Limiter struct {
	matcher *Matcher
	store   Store
}

// New creates a new Limiter.
func New(matcher *Matcher, store Store) *Limiter {
	if matcher == nil || store == nil {
		panic("limiter: matcher and store are required")
	}
	return &Limiter{
		matcher: matcher,
		store:   store,
	}
}

// Key builds the bucket key for identity and path.
func Key(identity, path string) string {
	return identity + ":" + path
}

// Admit decides on one request. A deny is reported in the Result; a non-nil
// error is always a *VerificationError and means no decision could be made.
// Whether to let the request through in that case is up to the caller.
func (l *Limiter) Admit(ctx context.Context, identity, method, path string) (Result, error) {
	limit := l.matcher.Resolve(method, path)
	key := Key(identity, path)

	res, err := l.store.CheckAndUpdate(ctx, key, limit)
	if err != nil {
		log.Error().Err(err).Str("key", key).Str("method", method).Msg("admission check failed")
		return Result{Decision: Deny, Limit: limit}, verificationError(key, err)
	}

	if res.Allowed() {
		log.Debug().Str("key", key).Str("method", method).Int64("remaining", res.Remaining).Msg("request admitted")
	} else {
		log.Warn().Str("key", key).Str("method", method).Str("limit", limit.String()).Time("reset_at", res.ResetAt).Msg("rate limit exceeded")
	}
	return res, nil
}

// Matcher returns the route matcher.
func (l *Limiter) Matcher() *Matcher { return l.matcher }
