// Package trash implements the trash-sentinel path helpers: the directory
// prefix under which deleted remote items reside, inside which path
// validation is relaxed since dead files need not be reachable. Matching
// uses doublestar, the same glob library mutagen's ignore-pattern matcher
// (pkg/synchronization/core/ignore.go) uses for path-pattern matching.
package trash

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultSentinel is the conventional trash directory name used when no
// other configuration is supplied.
const DefaultSentinel = ".cozy_trash"

// Matcher reports whether a path falls under a trash sentinel.
type Matcher struct {
	pattern string
}

// NewMatcher builds a Matcher for the given sentinel directory name (without
// slashes), e.g. ".cozy_trash".
func NewMatcher(sentinel string) *Matcher {
	sentinel = strings.Trim(sentinel, "/")
	return &Matcher{pattern: sentinel + "/**"}
}

// Contains reports whether path lies under the trash sentinel directory.
func (m *Matcher) Contains(path string) bool {
	path = strings.TrimPrefix(path, "/")
	if match, err := doublestar.Match(m.pattern, path); err == nil && match {
		return true
	}
	prefix := strings.TrimSuffix(m.pattern, "/**")
	return path == prefix
}
