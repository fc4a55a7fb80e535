// Package files provides the local file system provider used by the code
// pipeline and the sync engine: rooted file access, recursive directory
// watching and the code file system that stamps and indexes JSX on write.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"loom/internal/filter"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrOutsideRoot = errors.New("path escapes root")
	ErrIsDirectory = errors.New("path is a directory")
)

// listSkip prunes dependency trees and VCS metadata from listings.
var listSkip = filter.New(nil, nil)

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8000

var binaryExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
	".ico": true, ".bmp": true, ".avif": true, ".woff": true, ".woff2": true,
	".ttf": true, ".otf": true, ".eot": true, ".pdf": true, ".zip": true,
	".gz": true, ".tar": true, ".mp3": true, ".mp4": true, ".webm": true,
	".wasm": true,
}

// File is a file read from a provider.
type File struct {
	Path    string
	Content []byte
	Binary  bool
}

// Text returns the content as a string.
func (f *File) Text() string {
	return string(f.Content)
}

// IsBinary reports whether content at name should be treated as binary.
func IsBinary(name string, content []byte) bool {
	if binaryExts[strings.ToLower(path.Ext(name))] {
		return true
	}
	n := len(content)
	if n > binarySniffLen {
		n = binarySniffLen
	}
	return bytes.IndexByte(content[:n], 0) >= 0
}

// Info describes a path.
type Info struct {
	Path        string
	IsDirectory bool
	Size        int64
}

// FS is the local file system rooted at a project directory. All paths are
// project-relative with forward slashes; a leading "/" is ignored.
type FS struct {
	root string
}

// New creates a file system rooted at dir, creating it if needed.
func New(dir string) (*FS, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute root directory.
func (f *FS) Root() string {
	return f.root
}

// Rel normalizes p to a project-relative path.
func Rel(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." {
		return ""
	}
	return p
}

// Abs returns the absolute path of the project-relative p.
func (f *FS) Abs(p string) (string, error) {
	rel := Rel(p)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, p)
	}
	return filepath.Join(f.root, filepath.FromSlash(rel)), nil
}

// ReadFile reads the file at p.
func (f *FS) ReadFile(ctx context.Context, p string) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := f.Abs(p)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	rel := Rel(p)
	return &File{Path: rel, Content: content, Binary: IsBinary(rel, content)}, nil
}

// WriteFile writes content to p, creating parent directories.
func (f *FS) WriteFile(ctx context.Context, p string, content []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := f.Abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", p, err)
	}
	if err := os.WriteFile(abs, content, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", p, err)
	}
	return nil
}

// WriteFiles writes a batch of files. It stops at the first failure.
func (f *FS) WriteFiles(ctx context.Context, batch map[string][]byte) error {
	paths := make([]string, 0, len(batch))
	for p := range batch {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := f.WriteFile(ctx, p, batch[p]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteFile removes the file at p.
func (f *FS) DeleteFile(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := f.Abs(p)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return fmt.Errorf("deleting %s: %w", p, err)
	}
	return nil
}

// DeleteDirectory removes the directory at p and everything under it.
func (f *FS) DeleteDirectory(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := f.Abs(p)
	if err != nil {
		return err
	}
	if abs == f.root {
		return fmt.Errorf("%w: refusing to delete root", ErrOutsideRoot)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("deleting directory %s: %w", p, err)
	}
	return nil
}

// Exists reports whether p exists.
func (f *FS) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	abs, err := f.Abs(p)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetInfo describes p.
func (f *FS) GetInfo(ctx context.Context, p string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := f.Abs(p)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, err
	}
	return &Info{Path: Rel(p), IsDirectory: st.IsDir(), Size: st.Size()}, nil
}

// ListFiles returns every file under the root matching pattern, sorted.
// Directories in filter.DefaultExcludes are not descended into.
// An empty pattern matches everything.
func (f *FS) ListFiles(ctx context.Context, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "**"
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	var out []string
	err := filepath.WalkDir(f.root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(f.root, abs)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && listSkip.Excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := doublestar.Match(pattern, rel); ok {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	sort.Strings(out)
	return out, nil
}

// MoveFile renames from to to, creating parent directories.
func (f *FS) MoveFile(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := f.Abs(from)
	if err != nil {
		return err
	}
	dst, err := f.Abs(to)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", to, err)
	}
	if err := os.Rename(src, dst); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, from)
		}
		return fmt.Errorf("moving %s to %s: %w", from, to, err)
	}
	return nil
}

// CreateDirectory creates the directory at p and any missing parents.
func (f *FS) CreateDirectory(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	abs, err := f.Abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return fmt.Errorf("creating directory %s: %w", p, err)
	}
	return nil
}

// ReadDir lists the direct children of the directory at p, sorted by name.
func (f *FS) ReadDir(ctx context.Context, p string) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	abs, err := f.Abs(p)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("reading directory %s: %w", p, err)
	}
	base := Rel(p)
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		info := Info{Path: path.Join(base, e.Name()), IsDirectory: e.IsDir()}
		if fi, err := e.Info(); err == nil && !e.IsDir() {
			info.Size = fi.Size()
		}
		out = append(out, info)
	}
	return out, nil
}
