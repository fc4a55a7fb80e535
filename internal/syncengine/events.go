package syncengine

import (
	"context"
	"errors"
	"path"
	"strings"

	"loom/internal/files"
	"loom/internal/filter"
	"loom/internal/provider"
	"loom/internal/util"
)

// onRemoteEvent applies a sandbox change to the local directory.
func (e *Engine) onRemoteEvent(ctx context.Context, ev provider.WatchEvent) {
	if !e.active() {
		return
	}
	if ev.IsRename() {
		e.remoteRename(ctx, filter.Normalize(ev.Paths[0]), filter.Normalize(ev.Paths[1]))
		return
	}

	for _, raw := range ev.Paths {
		p := filter.Normalize(raw)
		if p == "" {
			continue
		}
		if !e.filter.ShouldSync(p) {
			e.log.Debug("skipping excluded sandbox change", "path", p)
			continue
		}
		switch ev.Type {
		case provider.EventAdd, provider.EventChange:
			e.remoteChanged(ctx, p)
		case provider.EventRemove:
			e.remoteRemoved(ctx, p)
		default:
			e.log.Warn("unknown sandbox event", "type", ev.Type, "path", p)
		}
	}
}

func (e *Engine) remoteChanged(ctx context.Context, p string) {
	var st *provider.Stat
	err := e.call(ctx, func(ctx context.Context) error {
		var err error
		st, err = e.remote.StatFile(ctx, p)
		return err
	})
	if err != nil {
		e.log.Debug("stat failed", "path", p, "error", err)
		return
	}

	if st.Type == provider.EntryDirectory {
		if err := e.local.CreateDirectory(ctx, p); err != nil {
			e.log.Warn("creating directory failed", "path", p, "error", err)
			return
		}
		e.pullDirectory(ctx, p)
		return
	}

	written, err := e.pullFile(ctx, p, false)
	if err != nil {
		e.log.Warn("syncing sandbox change failed", "path", p, "error", err)
		return
	}
	if written {
		e.log.Debug("pulled sandbox change", "path", p)
	} else {
		e.log.Debug("skipping unchanged file", "path", p)
	}
}

// pullDirectory copies a sandbox directory that appeared in one event,
// since the sandbox may only report the directory itself.
func (e *Engine) pullDirectory(ctx context.Context, dir string) {
	entries, err := e.listRemote(ctx, dir)
	if err != nil {
		e.log.Warn("listing new directory failed", "path", dir, "error", err)
		return
	}
	for _, en := range entries {
		if en.dir {
			if err := e.local.CreateDirectory(ctx, en.path); err != nil {
				e.log.Debug("creating directory failed", "path", en.path, "error", err)
			}
			continue
		}
		if _, err := e.pullFile(ctx, en.path, false); err != nil {
			e.log.Warn("syncing file failed", "path", en.path, "error", err)
		}
	}
}

func (e *Engine) remoteRemoved(ctx context.Context, p string) {
	e.hashes.deleteTree(p)

	exists, err := e.local.Exists(ctx, p)
	if err != nil || !exists {
		return
	}
	info, err := e.local.GetInfo(ctx, p)
	if err != nil {
		e.log.Debug("stat local failed", "path", p, "error", err)
		return
	}
	if info.IsDirectory {
		err = e.local.DeleteDirectory(ctx, p)
	} else {
		err = e.local.DeleteFile(ctx, p)
	}
	if err != nil {
		e.log.Debug("deleting local copy failed", "path", p, "error", err)
		return
	}
	e.log.Debug("removed local copy", "path", p)
}

func (e *Engine) remoteRename(ctx context.Context, from, to string) {
	if !e.filter.ShouldSync(from) || !e.filter.ShouldSync(to) {
		return
	}
	exists, err := e.local.Exists(ctx, from)
	if err == nil && exists {
		e.hashes.move(from, to)
		if err := e.local.MoveFile(ctx, from, to); err != nil {
			e.hashes.move(to, from)
			e.log.Warn("renaming local copy failed", "from", from, "to", to, "error", err)
			return
		}
		e.log.Debug("renamed local copy", "from", from, "to", to)
		return
	}
	e.remoteChanged(ctx, to)
}

// onLocalEvent pushes a local change to the sandbox.
func (e *Engine) onLocalEvent(ctx context.Context, ev files.Event) {
	if !e.active() {
		return
	}
	p := filter.Normalize(ev.Path)
	if p == "" || !e.filter.ShouldSync(p) {
		return
	}

	switch ev.Type {
	case files.EventCreate, files.EventUpdate:
		if ev.IsDirectory {
			return
		}
		e.localChanged(ctx, p)
	case files.EventDelete:
		e.localDeleted(ctx, p, ev.IsDirectory)
	case files.EventRename:
		e.localRenamed(ctx, filter.Normalize(ev.OldPath), p, ev.IsDirectory)
	}
}

func (e *Engine) localChanged(ctx context.Context, p string) {
	f, err := e.local.ReadFile(ctx, p)
	if err != nil {
		if !errors.Is(err, files.ErrNotFound) {
			e.log.Debug("reading local change failed", "path", p, "error", err)
		}
		return
	}
	hash := util.HashContent(f.Content)
	prev, had := e.hashes.get(p)
	if !e.hashes.swap(p, hash) {
		return
	}
	err = e.call(ctx, func(ctx context.Context) error {
		return e.remote.WriteFile(ctx, p, f.Content, true)
	})
	if err != nil {
		if had {
			e.hashes.set(p, prev)
		} else {
			e.hashes.delete(p)
		}
		e.log.Warn("pushing local change failed", "path", p, "error", err)
		return
	}
	e.log.Debug("pushed local change", "path", p)
}

func (e *Engine) localDeleted(ctx context.Context, p string, dir bool) {
	if !e.known(p, dir) {
		// The sandbox side already removed it.
		return
	}
	if dir {
		e.hashes.deleteTree(p)
	} else {
		e.hashes.delete(p)
	}

	err := e.call(ctx, func(ctx context.Context) error {
		return e.remote.DeleteFiles(ctx, p, true)
	})
	if err != nil {
		e.log.Debug("deleting from sandbox failed", "path", p, "error", err)
		return
	}
	e.log.Debug("deleted from sandbox", "path", p)
}

func (e *Engine) localRenamed(ctx context.Context, from, to string, dir bool) {
	if from == "" {
		e.log.Warn("rename without previous path", "path", to)
		if !dir {
			e.localChanged(ctx, to)
		}
		return
	}
	if !e.filter.ShouldSync(from) || !e.known(from, dir) {
		// Either the file entered the sync scope, or this is the local
		// side of a rename that came from the sandbox.
		if !dir {
			e.localChanged(ctx, to)
		}
		return
	}

	err := e.call(ctx, func(ctx context.Context) error {
		return e.remote.RenameFile(ctx, from, to)
	})
	if err != nil {
		e.log.Warn("renaming in sandbox failed", "from", from, "to", to, "error", err)
		return
	}
	e.hashes.move(from, to)
	e.log.Debug("renamed in sandbox", "from", from, "to", to)
}

// known reports whether p, or anything under it when dir is set, has a
// recorded hash.
func (e *Engine) known(p string, dir bool) bool {
	if dir {
		return e.hashes.hasTree(p)
	}
	_, ok := e.hashes.get(p)
	return ok
}

// pushModified pushes local JSX and TS files whose content differs from
// what was pulled, e.g. after oids were stamped into them on write.
func (e *Engine) pushModified(ctx context.Context) {
	paths, err := e.local.ListFiles(ctx, "**/*.{js,jsx,ts,tsx}")
	if err != nil {
		e.log.Warn("listing local files failed", "error", err)
		return
	}
	pushed := 0
	for _, p := range paths {
		if ctx.Err() != nil || !e.running.Load() {
			return
		}
		if !e.filter.ShouldSync(p) || isDeclaration(p) {
			continue
		}
		f, err := e.local.ReadFile(ctx, p)
		if err != nil {
			continue
		}
		hash := util.HashContent(f.Content)
		if !e.hashes.swap(p, hash) {
			continue
		}
		err = e.call(ctx, func(ctx context.Context) error {
			return e.remote.WriteFile(ctx, p, f.Content, true)
		})
		if err != nil {
			e.log.Warn("pushing modified file failed", "path", p, "error", err)
			continue
		}
		pushed++
	}
	if pushed > 0 {
		e.log.Info("pushed modified files", "count", pushed)
	}
}

func isDeclaration(p string) bool {
	return strings.HasSuffix(path.Base(p), ".d.ts")
}
