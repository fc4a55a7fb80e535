package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"loom/internal/files"
	"loom/internal/filter"
)

// Dir is a provider over a local directory. It backs the sandbox server
// and stands in for a sandbox in tests.
type Dir struct {
	fs       *files.FS
	debounce time.Duration
	log      *slog.Logger
}

// Option configures a Dir.
type Option func(*Dir)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dir) { d.log = l }
}

// WithDebounce sets the quiet period of watches.
func WithDebounce(dur time.Duration) Option {
	return func(d *Dir) { d.debounce = dur }
}

// NewDir creates a provider serving fsys.
func NewDir(fsys *files.FS, opts ...Option) *Dir {
	d := &Dir{fs: fsys, debounce: files.DefaultDebounce}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("component", "provider", "root", fsys.Root())
	return d
}

// Root returns the served directory.
func (d *Dir) Root() string {
	return d.fs.Root()
}

func (d *Dir) ReadFile(ctx context.Context, p string) (*files.File, error) {
	f, err := d.fs.ReadFile(ctx, p)
	if err != nil {
		if info, serr := d.fs.GetInfo(ctx, p); serr == nil && info.IsDirectory {
			return nil, fmt.Errorf("%w: %s", files.ErrIsDirectory, p)
		}
		return nil, translate(err)
	}
	return f, nil
}

func (d *Dir) WriteFile(ctx context.Context, p string, content []byte, overwrite bool) error {
	if !overwrite {
		exists, err := d.fs.Exists(ctx, p)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrExists, p)
		}
	}
	return d.fs.WriteFile(ctx, p, content)
}

func (d *Dir) ListFiles(ctx context.Context, dir string) ([]Entry, error) {
	infos, err := d.fs.ReadDir(ctx, dir)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]Entry, len(infos))
	for i, info := range infos {
		out[i] = Entry{
			Name: path.Base(info.Path),
			Path: info.Path,
			Type: entryType(info.IsDirectory),
		}
	}
	return out, nil
}

func (d *Dir) StatFile(ctx context.Context, p string) (*Stat, error) {
	info, err := d.fs.GetInfo(ctx, p)
	if err != nil {
		return nil, translate(err)
	}
	return &Stat{Path: info.Path, Type: entryType(info.IsDirectory), Size: info.Size}, nil
}

func (d *Dir) DeleteFiles(ctx context.Context, p string, recursive bool) error {
	info, err := d.fs.GetInfo(ctx, p)
	if err != nil {
		return translate(err)
	}
	if !info.IsDirectory {
		return translate(d.fs.DeleteFile(ctx, p))
	}
	if !recursive {
		children, err := d.fs.ReadDir(ctx, p)
		if err != nil {
			return translate(err)
		}
		if len(children) > 0 {
			return fmt.Errorf("%w: %s is not empty", files.ErrIsDirectory, p)
		}
	}
	return d.fs.DeleteDirectory(ctx, p)
}

func (d *Dir) RenameFile(ctx context.Context, oldPath, newPath string) error {
	return translate(d.fs.MoveFile(ctx, oldPath, newPath))
}

func (d *Dir) CreateDirectory(ctx context.Context, p string) error {
	return d.fs.CreateDirectory(ctx, p)
}

// WatchFiles watches the directory with fsnotify. Paths matching any of
// opts.Excludes are dropped before delivery.
func (d *Dir) WatchFiles(ctx context.Context, opts WatchOptions, fn func(WatchEvent)) (Watch, error) {
	base := filter.Normalize(opts.Path)
	skip := func(rel string) bool {
		return filter.MatchGlobs(opts.Excludes, rel)
	}
	wopts := files.WatchOptions{Debounce: d.debounce, Skip: skip, Logger: d.log}

	stop, err := d.fs.WatchDirectory(ctx, wopts, func(ev files.Event) {
		if !inScope(base, ev.Path, opts.Recursive) {
			return
		}
		we := toWatchEvent(ev)
		d.log.Debug("sandbox change", "type", we.Type, "paths", we.Paths)
		fn(we)
	})
	if err != nil {
		return nil, fmt.Errorf("watching %s: %w", d.fs.Root(), err)
	}
	return stopFunc(stop), nil
}

type stopFunc func()

func (s stopFunc) Stop() error {
	s()
	return nil
}

func toWatchEvent(ev files.Event) WatchEvent {
	switch ev.Type {
	case files.EventCreate:
		return WatchEvent{Type: EventAdd, Paths: []string{ev.Path}}
	case files.EventDelete:
		return WatchEvent{Type: EventRemove, Paths: []string{ev.Path}}
	case files.EventRename:
		if ev.OldPath != "" {
			return WatchEvent{Type: EventChange, Paths: []string{ev.OldPath, ev.Path}}
		}
		return WatchEvent{Type: EventAdd, Paths: []string{ev.Path}}
	default:
		return WatchEvent{Type: EventChange, Paths: []string{ev.Path}}
	}
}

// inScope reports whether p lies under base, directly when not recursive.
func inScope(base, p string, recursive bool) bool {
	if base == "" {
		return recursive || !strings.Contains(p, "/")
	}
	rest, ok := strings.CutPrefix(p, base+"/")
	if !ok {
		return false
	}
	return recursive || !strings.Contains(rest, "/")
}

func entryType(dir bool) EntryType {
	if dir {
		return EntryDirectory
	}
	return EntryFile
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, files.ErrNotFound) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
