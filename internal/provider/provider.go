// Package provider defines the contract of a sandbox file provider and a
// provider backed by a local directory.
package provider

import (
	"context"
	"errors"

	"loom/internal/files"
)

var (
	// ErrNotFound is returned when a path does not exist in the sandbox.
	ErrNotFound = errors.New("sandbox file not found")
	// ErrExists is returned when a write without overwrite hits an
	// existing file.
	ErrExists = errors.New("sandbox file already exists")
)

// EntryType is the type of a sandbox path.
type EntryType string

const (
	EntryFile      EntryType = "file"
	EntryDirectory EntryType = "directory"
)

// Entry is one child of a listed sandbox directory.
type Entry struct {
	Name string    `json:"name"`
	Path string    `json:"path"`
	Type EntryType `json:"type"`
}

// Stat describes a sandbox path.
type Stat struct {
	Path string    `json:"path"`
	Type EntryType `json:"type"`
	Size int64     `json:"size,omitempty"`
}

// EventType is the kind of a sandbox file change.
type EventType string

const (
	EventChange EventType = "change"
	EventAdd    EventType = "add"
	EventRemove EventType = "remove"
)

// WatchEvent reports changed sandbox paths. A change event carrying exactly
// two paths is a rename from Paths[0] to Paths[1].
type WatchEvent struct {
	Type  EventType `json:"type"`
	Paths []string  `json:"paths"`
}

// IsRename reports whether the event is a rename.
func (e WatchEvent) IsRename() bool {
	return e.Type == EventChange && len(e.Paths) == 2 && e.Paths[0] != "" && e.Paths[1] != ""
}

// WatchOptions selects what a watch reports.
type WatchOptions struct {
	Path      string   `json:"path"`
	Recursive bool     `json:"recursive"`
	Excludes  []string `json:"excludes,omitempty"`
}

// Watch is a running subscription.
type Watch interface {
	Stop() error
}

// Provider is a sandbox file system. Paths are sandbox-relative with
// forward slashes.
type Provider interface {
	ReadFile(ctx context.Context, path string) (*files.File, error)
	WriteFile(ctx context.Context, path string, content []byte, overwrite bool) error
	ListFiles(ctx context.Context, dir string) ([]Entry, error)
	StatFile(ctx context.Context, path string) (*Stat, error)
	DeleteFiles(ctx context.Context, path string, recursive bool) error
	RenameFile(ctx context.Context, oldPath, newPath string) error
	CreateDirectory(ctx context.Context, path string) error
	// WatchFiles calls fn for every change until the watch is stopped or
	// ctx is done.
	WatchFiles(ctx context.Context, opts WatchOptions, fn func(WatchEvent)) (Watch, error)
}
