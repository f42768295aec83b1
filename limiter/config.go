package limiter

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// Valid storage types
var validStorage = map[string]bool{
	StorageMemory:        true,
	StorageMemorySharded: true,
	StorageRedis:         true,
	StorageRedisLock:     true,
}

// LimitConfig is the configuration form of a Limit.
type LimitConfig struct {
	Window int64 `yaml:"window"` // window length in seconds
	Max    int64 `yaml:"max"`    // requests allowed per window
}

// Limit converts the configuration into a validated Limit.
func (c LimitConfig) Limit() (Limit, error) {
	return NewLimit(c.Window, c.Max)
}

// RouteConfig defines a single rate limiting rule.
type RouteConfig struct {
	Path   string `yaml:"path"`   // request path, a pattern if Regex is set
	Method string `yaml:"method"` // empty applies to every method
	Regex  bool   `yaml:"regex"`  // Path is matched as ^(Path)$
	Window int64  `yaml:"window"` // window length in seconds
	Max    int64  `yaml:"max"`    // requests allowed per window
}

// Config holds the overall rate limiter configuration. Routes are checked in
// the order they are listed.
type Config struct {
	StorageType string        `yaml:"storage_type"`
	Default     *LimitConfig  `yaml:"default"` // nil means DefaultLimit
	Routes      []RouteConfig `yaml:"routes"`
}

// ValidateAndPrepare validates the raw config and builds the route matcher.
// Any error here is a configuration error and should stop startup.
func (c *Config) ValidateAndPrepare() (*Matcher, error) {
	if c.StorageType == "" {
		c.StorageType = StorageMemory
	}
	if !validStorage[c.StorageType] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStorage, c.StorageType)
	}

	def := DefaultLimit()
	if c.Default != nil {
		l, err := c.Default.Limit()
		if err != nil {
			return nil, fmt.Errorf("default limit: %w", err)
		}
		def = l
	}

	if len(c.Routes) == 0 {
		log.Warn().Msg("no rate limit routes defined in config, default limit applies to every request")
	}

	rules := make([]Rule, 0, len(c.Routes))
	seen := make(map[string]int, len(c.Routes))
	for i, rc := range c.Routes {
		route, err := NewRoute(rc.Path, rc.Method, rc.Regex)
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		limit, err := NewLimit(rc.Window, rc.Max)
		if err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, route, err)
		}

		// a later duplicate can never match, the earlier one always wins
		if first, dup := seen[route.String()]; dup {
			log.Warn().Str("route", route.String()).Int("index", i).Int("shadowed_by", first).Msg("duplicate route is unreachable")
		} else {
			seen[route.String()] = i
		}

		rules = append(rules, Rule{Route: route, Limit: limit})
	}

	return NewMatcher(def, rules...)
}
