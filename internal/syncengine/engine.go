// Package syncengine keeps a local project directory and a remote sandbox
// in sync in both directions.
//
// Every synced path has the SHA-256 of its last synced content recorded.
// A change whose content hashes to the recorded value is taken to be the
// echo of a write made by the engine itself and is dropped, which stops
// writes from bouncing between the two sides.
package syncengine

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"loom/internal/files"
	"loom/internal/filter"
	"loom/internal/provider"
	"loom/internal/util"
)

// LocalFS is the local side of a sync. *files.FS and *files.CodeFS satisfy
// it.
type LocalFS interface {
	Root() string
	ReadFile(ctx context.Context, p string) (*files.File, error)
	WriteFile(ctx context.Context, p string, content []byte) error
	DeleteFile(ctx context.Context, p string) error
	DeleteDirectory(ctx context.Context, p string) error
	CreateDirectory(ctx context.Context, p string) error
	MoveFile(ctx context.Context, from, to string) error
	Exists(ctx context.Context, p string) (bool, error)
	GetInfo(ctx context.Context, p string) (*files.Info, error)
	ListFiles(ctx context.Context, pattern string) ([]string, error)
	WatchDirectory(ctx context.Context, opts files.WatchOptions, fn func(files.Event)) (func(), error)
}

// Config configures an Engine.
type Config struct {
	// Include limits sync to paths under these prefixes when non-empty.
	Include []string `yaml:"include,omitempty"`
	// Exclude adds directories to filter.DefaultExcludes.
	Exclude []string `yaml:"exclude,omitempty"`
	// Ignore holds gitignore-style patterns that are never synced.
	Ignore []string `yaml:"ignore,omitempty"`

	RemoteTimeout time.Duration `yaml:"remoteTimeout,omitempty"`
	RetryAttempts int           `yaml:"retryAttempts,omitempty"`
	RetryInterval time.Duration `yaml:"retryInterval,omitempty"`
	Debounce      time.Duration `yaml:"debounce,omitempty"`

	// PushModified pushes local JSX and TS files that differ from the
	// sandbox after start.
	PushModified bool `yaml:"pushModified,omitempty"`
}

func (c Config) withDefaults() Config {
	if c.RemoteTimeout <= 0 {
		c.RemoteTimeout = DefaultRemoteTimeout
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	} else if c.RetryAttempts == 0 {
		c.RetryAttempts = DefaultRetryAttempts
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.Debounce <= 0 {
		c.Debounce = files.DefaultDebounce
	}
	return c
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine syncs one sandbox with one local directory.
type Engine struct {
	remote provider.Provider
	local  LocalFS
	filter *filter.Filter
	cfg    Config
	log    *slog.Logger
	key    string

	hashes *hashTable

	running atomic.Bool
	paused  atomic.Bool

	mu          sync.Mutex
	remoteWatch provider.Watch
	stopLocal   func()
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates an engine. It does nothing until Start.
func New(remote provider.Provider, local LocalFS, cfg Config, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	e := &Engine{
		remote: remote,
		local:  local,
		cfg:    cfg,
		filter: filter.New(cfg.Exclude, cfg.Include, filter.WithPatterns(cfg.Ignore...)),
		hashes: newHashTable(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	e.log = e.log.With("component", "sync", "root", local.Root())
	return e
}

// Key returns the registry key of the engine, or "" when it was created
// outside a Registry.
func (e *Engine) Key() string {
	return e.key
}

// Running reports whether the engine is started.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Paused reports whether change events are being ignored.
func (e *Engine) Paused() bool {
	return e.paused.Load()
}

// ShouldSync reports whether p takes part in sync.
func (e *Engine) ShouldSync(p string) bool {
	return e.filter.ShouldSync(p)
}

// Hash returns the recorded hash of p.
func (e *Engine) Hash(p string) (string, bool) {
	return e.hashes.get(filter.Normalize(p))
}

// Start pulls the sandbox into the local directory and starts watching both
// sides. It is a no-op when already running. On failure the engine is left
// stopped.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return nil
	}
	e.running.Store(true)

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.cancel = cancel

	if err := e.pull(ctx); err != nil {
		e.teardown()
		return fmt.Errorf("initial pull: %w", err)
	}
	if err := e.watch(bg); err != nil {
		e.teardown()
		return fmt.Errorf("starting watchers: %w", err)
	}

	if e.cfg.PushModified {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.pushModified(bg)
		}()
	}
	e.log.Info("sync started", "files", e.hashes.len())
	return nil
}

// Stop cancels both watchers and clears the hash table. It is idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.Load() {
		return
	}
	e.teardown()
	e.log.Info("sync stopped")
}

func (e *Engine) teardown() {
	e.running.Store(false)
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	if e.remoteWatch != nil {
		if err := e.remoteWatch.Stop(); err != nil {
			e.log.Debug("stopping remote watch", "error", err)
		}
		e.remoteWatch = nil
	}
	if e.stopLocal != nil {
		e.stopLocal()
		e.stopLocal = nil
	}
	e.wg.Wait()
	e.hashes.clear()
}

// Pause makes the engine ignore change events until Unpause, e.g. around
// operations that rewrite many files at once.
func (e *Engine) Pause() {
	e.paused.Store(true)
}

// Unpause re-pulls the sandbox while still paused, then resumes handling
// events.
func (e *Engine) Unpause(ctx context.Context) error {
	defer e.paused.Store(false)
	if !e.running.Load() {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.pull(ctx); err != nil {
		return fmt.Errorf("re-pulling: %w", err)
	}
	return nil
}

func (e *Engine) active() bool {
	return e.running.Load() && !e.paused.Load()
}

type remoteEntry struct {
	path string
	dir  bool
}

// pull makes the local directory match the sandbox within the sync scope.
func (e *Engine) pull(ctx context.Context) error {
	entries, err := e.listRemote(ctx, "")
	if err != nil {
		return err
	}
	inSandbox := make(map[string]bool, len(entries))
	for _, en := range entries {
		inSandbox[en.path] = true
	}

	local, err := e.local.ListFiles(ctx, "")
	if err != nil {
		return fmt.Errorf("listing local files: %w", err)
	}
	for _, p := range local {
		if !e.filter.ShouldSync(p) || inSandbox[p] {
			continue
		}
		e.hashes.delete(p)
		if err := e.local.DeleteFile(ctx, p); err != nil {
			e.log.Debug("deleting stale local file failed", "path", p, "error", err)
			continue
		}
		e.log.Debug("deleted stale local file", "path", p)
	}

	for _, en := range entries {
		if !en.dir {
			continue
		}
		if err := e.local.CreateDirectory(ctx, en.path); err != nil {
			e.log.Debug("creating directory failed", "path", en.path, "error", err)
		}
	}

	written := 0
	for _, en := range entries {
		if en.dir {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := e.pullFile(ctx, en.path, false)
		if err != nil {
			e.log.Debug("skipping file", "path", en.path, "error", err)
			continue
		}
		if ok {
			written++
		}
	}
	e.log.Debug("pulled sandbox", "entries", len(entries), "written", written)
	return nil
}

// listRemote walks the sandbox from dir, skipping excluded directories.
func (e *Engine) listRemote(ctx context.Context, dir string) ([]remoteEntry, error) {
	var listed []provider.Entry
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		listed, err = e.remote.ListFiles(ctx, listPath(dir))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing sandbox %q: %w", listPath(dir), err)
	}

	var out []remoteEntry
	for _, en := range listed {
		p := filter.Normalize(path.Join(dir, en.Name))
		if p == "" {
			continue
		}
		if en.Type == provider.EntryDirectory {
			if e.filter.Excluded(p) {
				continue
			}
			if e.filter.ShouldSync(p) {
				out = append(out, remoteEntry{path: p, dir: true})
			}
			sub, err := e.listRemote(ctx, p)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		if e.filter.ShouldSync(p) {
			out = append(out, remoteEntry{path: p})
		}
	}
	return out, nil
}

func listPath(dir string) string {
	if dir == "" {
		return "./"
	}
	return dir
}

// pullFile copies one sandbox file to the local directory. Unless force is
// set it writes only when the content differs from the recorded hash; the
// local copy is also left alone when it already holds the same content. It
// reports whether the file was written.
func (e *Engine) pullFile(ctx context.Context, p string, force bool) (bool, error) {
	var f *files.File
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		f, err = e.remote.ReadFile(ctx, p)
		return err
	})
	if err != nil {
		return false, err
	}

	hash := util.HashContent(f.Content)
	if !force {
		if prev, ok := e.hashes.get(p); ok && prev == hash {
			return false, nil
		}
	}
	if cur, err := e.local.ReadFile(ctx, p); err == nil && util.HashContent(cur.Content) == hash {
		e.hashes.set(p, hash)
		return false, nil
	}

	prev, had := e.hashes.get(p)
	e.hashes.set(p, hash)
	if err := e.local.WriteFile(ctx, p, f.Content); err != nil {
		if had {
			e.hashes.set(p, prev)
		} else {
			e.hashes.delete(p)
		}
		return false, fmt.Errorf("writing %s: %w", p, err)
	}
	return true, nil
}

func (e *Engine) watch(ctx context.Context) error {
	w, err := e.remote.WatchFiles(ctx, provider.WatchOptions{
		Path:      "./",
		Recursive: true,
		Excludes:  e.filter.ExcludeGlobs(),
	}, func(ev provider.WatchEvent) {
		e.onRemoteEvent(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("watching sandbox: %w", err)
	}
	e.remoteWatch = w

	stop, err := e.local.WatchDirectory(ctx, files.WatchOptions{
		Debounce: e.cfg.Debounce,
		Skip:     e.filter.Excluded,
		Logger:   e.log,
	}, func(ev files.Event) {
		e.onLocalEvent(ctx, ev)
	})
	if err != nil {
		return fmt.Errorf("watching local directory: %w", err)
	}
	e.stopLocal = stop
	return nil
}
