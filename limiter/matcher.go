package limiter

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Rule binds a route to the limit applied to the requests it matches.
type Rule struct {
	Route Route
	Limit Limit
}

// Matcher resolves a request to its limit. Rules are evaluated in the order
// they were given and the first match wins; requests that match nothing get
// the default limit. A Matcher is immutable and safe for concurrent use.
type Matcher struct {
	def   Limit
	rules []Rule
}

// NewMatcher validates the default limit and every rule limit and returns the
// matcher. The rules slice is copied.
func NewMatcher(def Limit, rules ...Rule) (*Matcher, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("default limit: %w", err)
	}
	for i, rule := range rules {
		if rule.Route.path == "" {
			return nil, fmt.Errorf("rule %d: %w: empty path", i, ErrInvalidRoute)
		}
		if err := rule.Limit.Validate(); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Route, err)
		}
	}

	m := &Matcher{
		def:   def,
		rules: append([]Rule(nil), rules...),
	}
	log.Debug().Int("rules", len(m.rules)).Str("default", def.String()).Msg("route matcher built")
	return m, nil
}

// Resolve returns the limit for the request. It never fails.
func (m *Matcher) Resolve(method, path string) Limit {
	for i := range m.rules {
		if m.rules[i].Route.Match(method, path) {
			return m.rules[i].Limit
		}
	}
	return m.def
}

// Default returns the limit used when no rule matches.
func (m *Matcher) Default() Limit { return m.def }

// Len returns the number of rules.
func (m *Matcher) Len() int { return len(m.rules) }
