package extract

import (
	"fmt"
	"regexp"

	"github.com/gobwas/glob"
)

// Filter decides which repository paths are indexed. A path is kept when it
// matches the pattern (if any) and at least one glob (if any). The zero
// Filter and a nil *Filter keep everything.
type Filter struct {
	pattern *regexp.Regexp
	globs   []glob.Glob
}

// NewFilter compiles a regular expression and a list of globs. Globs use
// '/' as the separator, so "*" stays within a directory and "**" crosses
// directories.
func NewFilter(pattern string, globs []string) (*Filter, error) {
	f := &Filter{}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("file pattern: %w", err)
		}
		f.pattern = re
	}
	for _, g := range globs {
		compiled, err := glob.Compile(g, '/')
		if err != nil {
			return nil, fmt.Errorf("file glob %q: %w", g, err)
		}
		f.globs = append(f.globs, compiled)
	}
	return f, nil
}

// Match reports whether path (repo-relative, forward slashes) is kept.
func (f *Filter) Match(path string) bool {
	if f == nil {
		return true
	}
	if f.pattern != nil && !f.pattern.MatchString(path) {
		return false
	}
	if len(f.globs) == 0 {
		return true
	}
	for _, g := range f.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}
