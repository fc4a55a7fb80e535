// Package filter decides which project paths take part in sandbox sync.
package filter

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludes are the directories never synced: VCS metadata, dependency
// trees and build caches.
var DefaultExcludes = []string{
	"node_modules",
	".git",
	".next",
	"dist",
	"build",
	".turbo",
	".loom",
}

// Filter holds the exclude directories, optional include prefixes and
// optional gitignore-style patterns of one sync engine.
type Filter struct {
	excludes []string
	includes []string
	patterns *Matcher
}

// Option configures a Filter.
type Option func(*Filter)

// WithPatterns adds gitignore-style patterns on top of the exclude
// directories.
func WithPatterns(lines ...string) Option {
	return func(f *Filter) {
		if f.patterns == nil {
			f.patterns = NewMatcher()
		}
		f.patterns.AddPatterns(lines)
	}
}

// New creates a filter excluding DefaultExcludes plus excludes. When
// includes is non-empty only paths under one of its prefixes pass.
func New(excludes, includes []string, opts ...Option) *Filter {
	f := &Filter{}
	seen := make(map[string]bool)
	for _, d := range append(append([]string{}, DefaultExcludes...), excludes...) {
		d = Normalize(d)
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		f.excludes = append(f.excludes, d)
	}
	for _, p := range includes {
		if p = Normalize(p); p != "" {
			f.includes = append(f.includes, p)
		}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Normalize converts a provider or watcher path to the project-relative
// form used for filtering and hashing: forward slashes, no leading "./" or
// "/", no trailing "/".
func Normalize(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return ""
	}
	return path.Clean(p)
}

// Excluded reports whether p equals or is nested under an exclude
// directory, either from the root or at any depth.
func (f *Filter) Excluded(p string) bool {
	p = Normalize(p)
	if p == "" {
		return false
	}
	for _, ex := range f.excludes {
		if p == ex || strings.HasPrefix(p, ex+"/") {
			return true
		}
		if containsSegments(p, ex) {
			return true
		}
	}
	if f.patterns != nil && f.patterns.Match(p, false) {
		return true
	}
	return false
}

// Included reports whether p is under an include prefix. Everything is
// included when no prefixes are configured.
func (f *Filter) Included(p string) bool {
	if len(f.includes) == 0 {
		return true
	}
	p = Normalize(p)
	for _, in := range f.includes {
		if p == in || strings.HasPrefix(p, in+"/") {
			return true
		}
	}
	return false
}

// ShouldSync reports whether p takes part in sync.
func (f *Filter) ShouldSync(p string) bool {
	return !f.Excluded(p) && f.Included(p)
}

// ExcludeGlobs returns the exclude directories as "dir/**" globs for
// server-side watch filtering.
func (f *Filter) ExcludeGlobs() []string {
	out := make([]string, 0, 2*len(f.excludes))
	for _, ex := range f.excludes {
		out = append(out, ex+"/**", "**/"+ex+"/**")
	}
	return out
}

// MatchGlobs reports whether p matches any of globs.
func MatchGlobs(globs []string, p string) bool {
	p = Normalize(p)
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, p); ok {
			return true
		}
		// "dir/**" also matches dir itself.
		if base, ok := strings.CutSuffix(g, "/**"); ok {
			if ok, _ := doublestar.Match(base, p); ok {
				return true
			}
		}
	}
	return false
}

// containsSegments reports whether the segments of sub appear contiguously
// among the segments of p.
func containsSegments(p, sub string) bool {
	parts := strings.Split(p, "/")
	want := strings.Split(sub, "/")
	for i := 0; i+len(want) <= len(parts); i++ {
		match := true
		for j := range want {
			if parts[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
