package limiter

import (
	"fmt"
	"time"
)

// Limit is the quota applied to one bucket: at most Max requests per Window.
// A Max of zero denies every request.
type Limit struct {
	Window time.Duration // length of one fixed window
	Max    int64         // requests allowed per window
}

// NewLimit builds a Limit from a window length in seconds and a request count.
func NewLimit(windowSeconds, max int64) (Limit, error) {
	l := Limit{
		Window: time.Duration(windowSeconds) * time.Second,
		Max:    max,
	}
	if err := l.Validate(); err != nil {
		return Limit{}, err
	}
	return l, nil
}

// DefaultLimit returns the limit used when nothing else is configured: 5 requests per second.
func DefaultLimit() Limit {
	return Limit{Window: time.Second, Max: 5}
}

// Validate reports whether the limit can be enforced.
func (l Limit) Validate() error {
	if l.Window <= 0 {
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidLimit, l.Window)
	}
	if l.Max < 0 {
		return fmt.Errorf("%w: max must not be negative, got %d", ErrInvalidLimit, l.Max)
	}
	return nil
}

func (l Limit) String() string {
	return fmt.Sprintf("%d/%s", l.Max, l.Window)
}
