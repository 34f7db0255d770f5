package relay

import (
	"fmt"

	"github.com/gobwas/glob"
)

// GlobFilter selects events by glob patterns on the cache name and the
// rendered key
type GlobFilter struct {
	keyGlobs   []glob.Glob
	cacheGlobs []glob.Glob
}

// NewGlobFilter compiles the patterns. Empty pattern lists match everything.
func NewGlobFilter(keyPatterns, cachePatterns []string) (*GlobFilter, error) {
	f := &GlobFilter{
		keyGlobs:   make([]glob.Glob, 0, len(keyPatterns)),
		cacheGlobs: make([]glob.Glob, 0, len(cachePatterns)),
	}

	for _, pattern := range keyPatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid key pattern %q: %w", pattern, err)
		}
		f.keyGlobs = append(f.keyGlobs, g)
	}

	for _, pattern := range cachePatterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid cache pattern %q: %w", pattern, err)
		}
		f.cacheGlobs = append(f.cacheGlobs, g)
	}

	return f, nil
}

func matchAny(globs []glob.Glob, s string) bool {
	if len(globs) == 0 {
		return true
	}
	for _, g := range globs {
		if g.Match(s) {
			return true
		}
	}
	return false
}

// Match returns true if both cache and key match the configured patterns
func (f *GlobFilter) Match(cache, key string) bool {
	return matchAny(f.cacheGlobs, cache) && matchAny(f.keyGlobs, key)
}
