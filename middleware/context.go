package middleware

import (
	"context"

	"github.com/toolink/admit/limiter"
)

// resultKey is the private context key for the admission result.
type resultKey struct{}

// WithResult returns a copy of ctx carrying res.
func WithResult(ctx context.Context, res limiter.Result) context.Context {
	return context.WithValue(ctx, resultKey{}, res)
}

// ResultFromContext returns the admission result of the current request, if
// the request went through RateLimit.
func ResultFromContext(ctx context.Context) (limiter.Result, bool) {
	res, ok := ctx.Value(resultKey{}).(limiter.Result)
	return res, ok
}
