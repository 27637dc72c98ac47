// Package exclude decides which paths a scan skips, based on glob-style
// directory patterns and an extension blacklist.
package exclude

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config holds the two exclusion lists. Directories are shell-glob
// patterns matched against the full path (e.g. "*/tmp/*"); Extensions are
// bare lowercase extensions without the dot.
type Config struct {
	Directories []string
	Extensions  []string
}

// Extension returns the substring after the last dot of the base name,
// lowercased, or "" when the name has no dot.
func Extension(name string) string {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if ext == "" {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// ShouldExclude reports whether path matches any directory pattern or
// carries a blacklisted extension. Invalid patterns never match.
func (c Config) ShouldExclude(path string) bool {
	for _, pattern := range c.Directories {
		if matched, _ := filepath.Match(pattern, path); matched {
			return true
		}
	}
	if len(c.Extensions) == 0 {
		return false
	}
	ext := Extension(path)
	for _, e := range c.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Validate checks that every directory pattern is a valid glob.
func (c Config) Validate() error {
	return ValidatePatterns(c.Directories)
}

// ValidatePatterns checks that every pattern is a valid filepath.Match
// glob, naming the first offender.
func ValidatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("pattern %q: %w", pattern, err)
		}
	}
	return nil
}
