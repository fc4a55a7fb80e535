package filter

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Pattern is a single gitignore-style pattern.
type Pattern struct {
	pattern  string
	negated  bool
	dirOnly  bool
	anchored bool // starts with /, matches from the root only
}

// Matcher holds compiled gitignore-style patterns. Later patterns override
// earlier ones.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher creates an empty matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// AddPattern adds a single pattern line.
func (m *Matcher) AddPattern(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}

	p := Pattern{}
	if strings.HasPrefix(line, "!") {
		p.negated = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	// Unanchored patterns without a slash match the basename at any level.
	if !p.anchored && !strings.Contains(line, "/") {
		line = "**/" + line
	}

	p.pattern = line
	m.patterns = append(m.patterns, p)
}

// AddPatterns adds multiple pattern lines.
func (m *Matcher) AddPatterns(lines []string) {
	for _, line := range lines {
		m.AddPattern(line)
	}
}

// LoadFile adds the patterns of an ignore file. A missing file is not an
// error.
func (m *Matcher) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		m.AddPattern(scanner.Text())
	}
	return scanner.Err()
}

// LoadDir loads .loomignore from dir into a new matcher.
func LoadDir(dir string) (*Matcher, error) {
	m := NewMatcher()
	if err := m.LoadFile(filepath.Join(dir, ".loomignore")); err != nil {
		return nil, err
	}
	return m, nil
}

// Len returns the number of patterns.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

// Match reports whether the project-relative path is ignored.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = strings.TrimPrefix(filepath.ToSlash(path), "./")

	ignored := false
	for _, p := range m.patterns {
		var matched bool
		if p.dirOnly && !isDir {
			matched = matchParent(p.pattern, path)
		} else {
			matched = matchPattern(p.pattern, path)
		}
		if matched {
			ignored = !p.negated
		}
	}
	return ignored
}

// matchParent reports whether a parent directory of path matches pattern.
func matchParent(pattern, path string) bool {
	parts := strings.Split(path, "/")
	for i := 1; i < len(parts); i++ {
		if matchPattern(pattern, strings.Join(parts[:i], "/")) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, path string) bool {
	if ok, _ := doublestar.Match(pattern, path); ok {
		return true
	}
	if !strings.HasSuffix(pattern, "/**") {
		if ok, _ := doublestar.Match(pattern+"/**", path); ok {
			return true
		}
	}
	return false
}
