package syncengine

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"loom/internal/files"
	"loom/internal/filter"
	"loom/internal/provider"
)

// memSandbox is an in-memory provider. Events are delivered only when the
// test calls emit.
type memSandbox struct {
	mu     sync.Mutex
	files  map[string][]byte
	dirs   map[string]bool
	writes map[string]int
	calls  []string

	// failures makes the next n calls of an operation fail transiently.
	failures map[string]int
	watchErr error

	watchFn func(provider.WatchEvent)
	watch   provider.WatchOptions
}

func newMemSandbox(contents map[string]string) *memSandbox {
	m := &memSandbox{
		files:    make(map[string][]byte),
		dirs:     make(map[string]bool),
		writes:   make(map[string]int),
		failures: make(map[string]int),
	}
	for p, c := range contents {
		m.put(p, []byte(c))
	}
	return m
}

func (m *memSandbox) put(p string, content []byte) {
	m.files[p] = content
	for d := path.Dir(p); d != "." && d != "/"; d = path.Dir(d) {
		m.dirs[d] = true
	}
}

func (m *memSandbox) record(op, p string) error {
	m.calls = append(m.calls, op+" "+p)
	if n := m.failures[op]; n > 0 {
		m.failures[op] = n - 1
		return fmt.Errorf("transient %s failure", op)
	}
	return nil
}

func (m *memSandbox) ReadFile(ctx context.Context, p string) (*files.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filter.Normalize(p)
	if err := m.record("read", p); err != nil {
		return nil, err
	}
	c, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, p)
	}
	return &files.File{Path: p, Content: append([]byte(nil), c...)}, nil
}

func (m *memSandbox) WriteFile(ctx context.Context, p string, content []byte, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filter.Normalize(p)
	if err := m.record("write", p); err != nil {
		return err
	}
	if _, ok := m.files[p]; ok && !overwrite {
		return fmt.Errorf("%w: %s", provider.ErrExists, p)
	}
	m.put(p, append([]byte(nil), content...))
	m.writes[p]++
	return nil
}

func (m *memSandbox) ListFiles(ctx context.Context, dir string) ([]provider.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = filter.Normalize(dir)
	if err := m.record("list", dir); err != nil {
		return nil, err
	}
	if dir != "" && !m.dirs[dir] {
		return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, dir)
	}
	var out []provider.Entry
	child := func(p string) (string, bool) {
		if dir == "" {
			return p, !strings.Contains(p, "/")
		}
		rest, ok := strings.CutPrefix(p, dir+"/")
		return rest, ok && !strings.Contains(rest, "/")
	}
	for p := range m.files {
		if name, ok := child(p); ok {
			out = append(out, provider.Entry{Name: name, Path: p, Type: provider.EntryFile})
		}
	}
	for p := range m.dirs {
		if name, ok := child(p); ok {
			out = append(out, provider.Entry{Name: name, Path: p, Type: provider.EntryDirectory})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *memSandbox) StatFile(ctx context.Context, p string) (*provider.Stat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filter.Normalize(p)
	if err := m.record("stat", p); err != nil {
		return nil, err
	}
	if c, ok := m.files[p]; ok {
		return &provider.Stat{Path: p, Type: provider.EntryFile, Size: int64(len(c))}, nil
	}
	if m.dirs[p] {
		return &provider.Stat{Path: p, Type: provider.EntryDirectory}, nil
	}
	return nil, fmt.Errorf("%w: %s", provider.ErrNotFound, p)
}

func (m *memSandbox) DeleteFiles(ctx context.Context, p string, recursive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filter.Normalize(p)
	if err := m.record("delete", p); err != nil {
		return err
	}
	found := false
	for k := range m.files {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(m.files, k)
			found = true
		}
	}
	for k := range m.dirs {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(m.dirs, k)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", provider.ErrNotFound, p)
	}
	return nil
}

func (m *memSandbox) RenameFile(ctx context.Context, oldPath, newPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	oldPath, newPath = filter.Normalize(oldPath), filter.Normalize(newPath)
	if err := m.record("rename", oldPath+"->"+newPath); err != nil {
		return err
	}
	c, ok := m.files[oldPath]
	if !ok {
		return fmt.Errorf("%w: %s", provider.ErrNotFound, oldPath)
	}
	delete(m.files, oldPath)
	m.put(newPath, c)
	return nil
}

func (m *memSandbox) CreateDirectory(ctx context.Context, p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p = filter.Normalize(p)
	if err := m.record("mkdir", p); err != nil {
		return err
	}
	m.dirs[p] = true
	return nil
}

func (m *memSandbox) WatchFiles(ctx context.Context, opts provider.WatchOptions, fn func(provider.WatchEvent)) (provider.Watch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watchErr != nil {
		return nil, m.watchErr
	}
	m.watch = opts
	m.watchFn = fn
	return memWatch{m}, nil
}

type memWatch struct{ m *memSandbox }

func (w memWatch) Stop() error {
	w.m.mu.Lock()
	w.m.watchFn = nil
	w.m.mu.Unlock()
	return nil
}

// emit delivers an event synchronously.
func (m *memSandbox) emit(ev provider.WatchEvent) error {
	m.mu.Lock()
	fn := m.watchFn
	m.mu.Unlock()
	if fn == nil {
		return errors.New("no watch registered")
	}
	fn(ev)
	return nil
}

func (m *memSandbox) content(p string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.files[p]
	return string(c), ok
}

func (m *memSandbox) writeCount(p string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[p]
}

func (m *memSandbox) failNext(op string, n int) {
	m.mu.Lock()
	m.failures[op] = n
	m.mu.Unlock()
}

func (m *memSandbox) callCount(prefix string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}
