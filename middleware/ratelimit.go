// Package middleware puts a limiter in front of net/http handlers.
package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/toolink/admit/limiter"
)

// Admitter decides on a single request. *limiter.Limiter implements it.
type Admitter interface {
	Admit(ctx context.Context, identity, method, path string) (limiter.Result, error)
}

// Options configures RateLimit.
type Options struct {
	// Identity extracts the caller identity. Default: ClientIP.
	Identity func(r *http.Request) string
	// OnLimited writes the response for a denied request. Default: 429.
	OnLimited func(w http.ResponseWriter, r *http.Request, res limiter.Result)
	// OnError writes the response when the limiter could not decide and
	// FailOpen is off. Default: 503.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
	// FailOpen lets requests through when the limiter fails.
	FailOpen bool
	// Headers adds X-RateLimit-* headers to every checked response.
	Headers bool
	// Skip exempts requests from limiting.
	Skip func(r *http.Request) bool
}

// Option configures Options.
type Option func(*Options)

// WithIdentity sets the identity extractor.
func WithIdentity(fn func(r *http.Request) string) Option {
	return func(o *Options) {
		if fn != nil {
			o.Identity = fn
		}
	}
}

// WithTrustedProxyHeaders takes the identity from X-Real-IP or X-Forwarded-For.
// Only enable it behind a proxy that sets these headers.
func WithTrustedProxyHeaders() Option {
	return func(o *Options) {
		o.Identity = ProxyClientIP
	}
}

// WithOnLimited sets the handler for denied requests.
func WithOnLimited(fn func(w http.ResponseWriter, r *http.Request, res limiter.Result)) Option {
	return func(o *Options) {
		if fn != nil {
			o.OnLimited = fn
		}
	}
}

// WithOnError sets the handler for limiter failures.
func WithOnError(fn func(w http.ResponseWriter, r *http.Request, err error)) Option {
	return func(o *Options) {
		if fn != nil {
			o.OnError = fn
		}
	}
}

// WithFailOpen lets requests through when the limiter cannot decide.
func WithFailOpen(failOpen bool) Option {
	return func(o *Options) {
		o.FailOpen = failOpen
	}
}

// WithHeaders enables X-RateLimit-* response headers.
func WithHeaders(enabled bool) Option {
	return func(o *Options) {
		o.Headers = enabled
	}
}

// WithSkip exempts the requests fn returns true for.
func WithSkip(fn func(r *http.Request) bool) Option {
	return func(o *Options) {
		o.Skip = fn
	}
}

// DefaultOnLimited responds 429 with Retry-After.
func DefaultOnLimited(w http.ResponseWriter, r *http.Request, res limiter.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(res, time.Now())))
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}

// DefaultOnError responds 503.
func DefaultOnError(w http.ResponseWriter, r *http.Request, err error) {
	http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
}

// RateLimit returns middleware that admits each request through l, keyed by
// the caller identity and the request path. Denied requests never reach next.
func RateLimit(l Admitter, opts ...Option) func(http.Handler) http.Handler {
	if l == nil {
		panic("ratelimit middleware: limiter is required")
	}

	o := &Options{
		Identity:  ClientIP,
		OnLimited: DefaultOnLimited,
		OnError:   DefaultOnError,
	}
	for _, opt := range opts {
		opt(o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if o.Skip != nil && o.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			identity := o.Identity(r)
			res, err := l.Admit(r.Context(), identity, r.Method, r.URL.Path)
			if err != nil {
				if o.FailOpen {
					log.Warn().Err(err).Str("identity", identity).Str("path", r.URL.Path).Msg("limiter unavailable, failing open")
					next.ServeHTTP(w, r)
					return
				}
				o.OnError(w, r, err)
				return
			}

			if o.Headers {
				setHeaders(w.Header(), res)
			}
			if !res.Allowed() {
				o.OnLimited(w, r, res)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithResult(r.Context(), res)))
		})
	}
}

func setHeaders(h http.Header, res limiter.Result) {
	h.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit.Max, 10))
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	if !res.ResetAt.IsZero() {
		h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
	}
}

// retryAfterSeconds rounds up and never returns less than 1.
func retryAfterSeconds(res limiter.Result, now time.Time) int {
	seconds := int(math.Ceil(res.RetryAfter(now).Seconds()))
	return max(seconds, 1)
}
