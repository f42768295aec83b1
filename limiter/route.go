package limiter

import (
	"fmt"
	"regexp"
	"strings"
)

// Route selects requests by path and, optionally, by method.
type Route struct {
	path   string         // literal path, or the raw pattern if regex is set
	method string         // upper-case method, empty matches any method
	regex  *regexp.Regexp // compiled ^(path)$, nil for literal routes
}

// NewRoute builds a route. With regex set, path is compiled as ^(path)$ so it
// always has to match the whole request path. A pattern that does not compile
// is reported here and never at request time.
func NewRoute(path, method string, regex bool) (Route, error) {
	if path == "" {
		return Route{}, fmt.Errorf("%w: empty path", ErrInvalidRoute)
	}

	r := Route{
		path:   path,
		method: strings.ToUpper(strings.TrimSpace(method)),
	}
	if regex {
		re, err := regexp.Compile("^(" + path + ")$")
		if err != nil {
			return Route{}, fmt.Errorf("%w: failed to compile regex for path '%s': %w", ErrInvalidRoute, path, err)
		}
		r.regex = re
	}
	return r, nil
}

// MustRoute is like NewRoute but panics on error.
func MustRoute(path, method string, regex bool) Route {
	r, err := NewRoute(path, method, regex)
	if err != nil {
		panic(err)
	}
	return r
}

// Match reports whether the route applies to the request.
func (r Route) Match(method, path string) bool {
	if r.method != "" && r.method != method {
		return false
	}
	if r.regex != nil {
		return r.regex.MatchString(path)
	}
	return r.path == path
}

// Path returns the configured path or pattern.
func (r Route) Path() string { return r.path }

// Method returns the method the route is scoped to, or "" for any.
func (r Route) Method() string { return r.method }

// IsRegex reports whether the path is a pattern.
func (r Route) IsRegex() bool { return r.regex != nil }

func (r Route) String() string {
	method := r.method
	if method == "" {
		method = "*"
	}
	return method + " " + r.path
}
