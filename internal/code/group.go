package code

import (
	"context"
	"fmt"

	"loom/internal/branch"
	"loom/internal/files"
	"loom/internal/models"
)

// FileKey identifies the file a group of requests applies to. Two branches
// never share a group.
type FileKey struct {
	BranchID string
	Path     string
}

// FileGroup holds every request of one write cycle that targets one file,
// together with the file's content as read once for the cycle.
type FileGroup struct {
	Key      FileKey
	File     *files.File
	Editor   branch.Editor
	Requests map[string]*models.CodeDiffRequest
}

// FileToRequests is the ordered set of groups of one write cycle.
type FileToRequests struct {
	groups []*FileGroup
	byKey  map[FileKey]*FileGroup
}

// Groups returns the groups in the order their first request was seen.
func (f *FileToRequests) Groups() []*FileGroup {
	return f.groups
}

// Get returns the group for key.
func (f *FileToRequests) Get(key FileKey) (*FileGroup, bool) {
	g, ok := f.byKey[key]
	return g, ok
}

// Len returns the number of groups.
func (f *FileToRequests) Len() int {
	return len(f.groups)
}

// GroupByFile resolves each request's oid to its file on the request's
// branch and groups the requests by (branch, path). Each file is read once.
func GroupByFile(ctx context.Context, branches *branch.Registry, reqs []*models.CodeDiffRequest) (*FileToRequests, error) {
	out := &FileToRequests{byKey: make(map[FileKey]*FileGroup)}

	for _, req := range reqs {
		b, err := branches.Get(req.BranchID)
		if err != nil {
			return nil, err
		}
		if b.Editor == nil {
			return nil, fmt.Errorf("%w: branch %q has no editor", branch.ErrNoBranch, b.ID)
		}

		meta, err := b.Editor.ElementMetadata(ctx, req.OID)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", req.OID, err)
		}
		if meta == nil {
			return nil, fmt.Errorf("%w: %s", ErrMetadataNotFound, req.OID)
		}

		key := FileKey{BranchID: b.ID, Path: meta.Path}
		g, ok := out.byKey[key]
		if !ok {
			f, err := b.Editor.ReadFile(ctx, meta.Path)
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", meta.Path, err)
			}
			if f.Binary {
				return nil, fmt.Errorf("%w: %s", ErrBinaryFile, meta.Path)
			}
			g = &FileGroup{
				Key:      key,
				File:     f,
				Editor:   b.Editor,
				Requests: make(map[string]*models.CodeDiffRequest),
			}
			out.byKey[key] = g
			out.groups = append(out.groups, g)
		}
		req.BranchID = b.ID
		g.Requests[req.OID] = req
	}
	return out, nil
}
