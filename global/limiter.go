// Package global holds the process-wide default Limiter for code that has no
// natural place to receive one, such as handlers registered at init time.
package global

import (
	"sync/atomic"

	"github.com/toolink/admit/limiter"
)

// defaultLimiter applies DefaultLimit to every request from process memory.
func defaultLimiter() *atomic.Value {
	m, err := limiter.NewMatcher(limiter.DefaultLimit())
	if err != nil {
		panic(err)
	}
	v := &atomic.Value{}
	v.Store(limiter.New(m, limiter.NewMemoryStore()))
	return v
}

var globalLimiter = defaultLimiter()

// SetLimiter sets the global limiter instance. A nil l is ignored.
func SetLimiter(l *limiter.Limiter) {
	if l == nil {
		return
	}
	globalLimiter.Store(l)
}

// GetLimiter returns the global limiter instance.
func GetLimiter() *limiter.Limiter {
	return globalLimiter.Load().(*limiter.Limiter)
}
