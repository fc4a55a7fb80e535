package files

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// EventType is the kind of a local file change.
type EventType string

const (
	EventCreate EventType = "create"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
	EventRename EventType = "rename"
)

// Event is a debounced change under a watched root. Paths are
// project-relative.
type Event struct {
	Path        string
	Type        EventType
	OldPath     string
	IsDirectory bool
}

// DefaultDebounce is the quiet period after which changes are delivered.
const DefaultDebounce = 50 * time.Millisecond

// WatchOptions configures a Watcher.
type WatchOptions struct {
	// Debounce coalesces bursts of changes to one path.
	Debounce time.Duration
	// Skip reports whether a project-relative path is ignored. Skipped
	// directories are not watched at all.
	Skip   func(rel string) bool
	Logger *slog.Logger
}

type pendingEvent struct {
	ev Event
	at time.Time
}

type pendingRename struct {
	path  string
	isDir bool
	at    time.Time
}

// Watcher watches a directory tree. fsnotify watches are added for every
// directory, including ones created after Start.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	debounce  time.Duration
	skip      func(string) bool
	log       *slog.Logger

	// Pending changes, keyed by path.
	pending map[string]*pendingEvent
	renames []pendingRename
	dirs    map[string]bool
	mu      sync.Mutex

	events chan Event
	errors chan error

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWatcher creates a watcher for the tree rooted at root.
func NewWatcher(root string, opts WatchOptions) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		root:      root,
		debounce:  opts.Debounce,
		skip:      opts.Skip,
		log:       opts.Logger.With("component", "watcher"),
		pending:   make(map[string]*pendingEvent),
		dirs:      make(map[string]bool),
		events:    make(chan Event, 256),
		errors:    make(chan error, 16),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of debounced events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start adds watches for the whole tree and begins delivering events.
func (w *Watcher) Start() error {
	if err := w.addTree(w.root, false); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop shuts the watcher down. It is safe to call more than once.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
		close(w.events)
		close(w.errors)
		err = w.fsWatcher.Close()
	})
	return err
}

func (w *Watcher) rel(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if w.skip != nil && w.skip(rel) {
		return "", false
	}
	return rel, true
}

// addTree watches dir and every directory below it. With announce set, the
// files found are queued as created, since they may have been written
// before the watch existed.
func (w *Watcher) addTree(dir string, announce bool) error {
	return filepath.WalkDir(dir, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			if abs == dir {
				return err
			}
			return nil
		}
		if abs != w.root {
			rel, ok := w.rel(abs)
			if !ok {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if announce && abs != dir {
				w.queue(Event{Path: rel, Type: EventCreate, IsDirectory: d.IsDir()})
			}
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fsWatcher.Add(abs); err != nil {
			return err
		}
		w.mu.Lock()
		w.dirs[abs] = true
		w.mu.Unlock()
		return nil
	})
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.log.Warn("dropping watch error", "error", err)
			}
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	rel, ok := w.rel(event.Name)
	if !ok {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		isDir := false
		if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
			isDir = true
			if err := w.addTree(event.Name, true); err != nil {
				w.log.Debug("failed to watch new directory", "path", rel, "error", err)
			}
		}
		if old, ok := w.takeRename(); ok {
			w.queue(Event{Path: rel, Type: EventRename, OldPath: old.path, IsDirectory: isDir})
			return
		}
		w.queue(Event{Path: rel, Type: EventCreate, IsDirectory: isDir})

	case event.Has(fsnotify.Write):
		w.queue(Event{Path: rel, Type: EventUpdate})

	case event.Has(fsnotify.Remove):
		w.queue(Event{Path: rel, Type: EventDelete, IsDirectory: w.forgetDir(event.Name)})

	case event.Has(fsnotify.Rename):
		isDir := w.forgetDir(event.Name)
		w.mu.Lock()
		delete(w.pending, rel)
		w.renames = append(w.renames, pendingRename{path: rel, isDir: isDir, at: time.Now()})
		w.mu.Unlock()
	}
}

// forgetDir drops the watch state of a removed or renamed directory and
// reports whether abs was a watched directory.
func (w *Watcher) forgetDir(abs string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.dirs[abs] {
		return false
	}
	delete(w.dirs, abs)
	_ = w.fsWatcher.Remove(abs)
	return true
}

// takeRename pops the oldest rename still inside the debounce window.
func (w *Watcher) takeRename() (pendingRename, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.renames) == 0 {
		return pendingRename{}, false
	}
	r := w.renames[0]
	w.renames = w.renames[1:]
	return r, true
}

// queue merges ev into the pending change for its path.
func (w *Watcher) queue(ev Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if p, ok := w.pending[ev.Path]; ok {
		switch {
		case ev.Type == EventUpdate && (p.ev.Type == EventCreate || p.ev.Type == EventRename):
			// Keep the stronger event; writes after a create are part of it.
		case ev.Type == EventCreate && p.ev.Type == EventDelete:
			p.ev = Event{Path: ev.Path, Type: EventUpdate, IsDirectory: ev.IsDirectory}
		default:
			p.ev = ev
		}
		p.at = now
		return
	}
	w.pending[ev.Path] = &pendingEvent{ev: ev, at: now}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	interval := w.debounce / 2
	if interval < 5*time.Millisecond {
		interval = 5 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case now := <-ticker.C:
			for _, ev := range w.due(now) {
				select {
				case w.events <- ev:
				case <-w.done:
					return
				}
			}
		}
	}
}

// due removes and returns the changes that have been quiet for the
// debounce period. Renames never matched by a create become deletes.
func (w *Watcher) due(now time.Time) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	var ready []*pendingEvent
	for path, p := range w.pending {
		if now.Sub(p.at) >= w.debounce {
			ready = append(ready, p)
			delete(w.pending, path)
		}
	}

	kept := w.renames[:0]
	for _, r := range w.renames {
		if now.Sub(r.at) >= w.debounce {
			ready = append(ready, &pendingEvent{
				ev: Event{Path: r.path, Type: EventDelete, IsDirectory: r.isDir},
				at: r.at,
			})
			continue
		}
		kept = append(kept, r)
	}
	w.renames = kept

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].at.Equal(ready[j].at) {
			return ready[i].ev.Path < ready[j].ev.Path
		}
		return ready[i].at.Before(ready[j].at)
	})
	out := make([]Event, len(ready))
	for i, p := range ready {
		out[i] = p.ev
	}
	return out
}

// WatchDirectory watches the whole tree under the root and calls fn for
// every debounced change until ctx is done or the returned function is
// called.
func (f *FS) WatchDirectory(ctx context.Context, opts WatchOptions, fn func(Event)) (func(), error) {
	w, err := NewWatcher(f.root, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return nil, err
	}

	go func() {
		errs := w.Errors()
		for {
			select {
			case ev, ok := <-w.Events():
				if !ok {
					return
				}
				fn(ev)
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				w.log.Warn("watch error", "error", err)
			case <-ctx.Done():
				w.Stop()
				return
			}
		}
	}()

	return func() { w.Stop() }, nil
}
