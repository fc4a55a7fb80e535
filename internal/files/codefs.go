package files

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"loom/internal/index"
	"loom/internal/jsx"
)

// CodeFS is the code store of one branch. JSX files written through it get
// oids stamped, are printed canonically and are indexed so oids resolve to
// their source location.
type CodeFS struct {
	*FS

	branchID string
	index    *index.Index
	parser   *jsx.Parser
	oids     *jsx.OIDGenerator
	log      *slog.Logger
}

// NewCodeFS wraps fsys for branchID. oids may be shared between branches of
// one project so generated oids never collide.
func NewCodeFS(fsys *FS, branchID string, ix *index.Index, parser *jsx.Parser, oids *jsx.OIDGenerator, logger *slog.Logger) *CodeFS {
	if parser == nil {
		parser = jsx.NewParser()
	}
	if oids == nil {
		oids = jsx.NewOIDGenerator()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeFS{
		FS:       fsys,
		branchID: branchID,
		index:    ix,
		parser:   parser,
		oids:     oids,
		log:      logger.With("component", "codefs", "branch", branchID),
	}
}

// BranchID returns the branch this store belongs to.
func (c *CodeFS) BranchID() string {
	return c.branchID
}

// WriteFile writes content to p. JSX files are stamped, printed and
// indexed first; files that fail to parse are written unchanged.
func (c *CodeFS) WriteFile(ctx context.Context, p string, content []byte) error {
	rel := Rel(p)
	var doc *jsx.Document
	if jsx.IsJSXFile(rel) {
		content, doc = c.process(rel, content)
	}
	if err := c.FS.WriteFile(ctx, rel, content); err != nil {
		return err
	}
	if doc != nil {
		c.indexDocument(rel, content, doc)
	}
	return nil
}

// WriteFiles writes a batch through WriteFile.
func (c *CodeFS) WriteFiles(ctx context.Context, batch map[string][]byte) error {
	for p, content := range batch {
		if err := c.WriteFile(ctx, p, content); err != nil {
			return err
		}
	}
	return nil
}

// process stamps and prints a JSX file. The returned document is parsed
// from the returned content.
func (c *CodeFS) process(p string, content []byte) ([]byte, *jsx.Document) {
	doc, err := c.parser.Parse(p, content)
	if err != nil {
		c.log.Debug("skipping jsx processing", "path", p, "error", err)
		return content, nil
	}
	if !jsx.StampOIDs(doc, c.oids) {
		return content, doc
	}

	out := []byte(doc.Render())
	stamped, err := c.parser.Parse(p, out)
	if err != nil {
		c.log.Warn("stamped output failed to parse", "path", p, "error", err)
		return content, doc
	}
	return out, stamped
}

func (c *CodeFS) indexDocument(p string, content []byte, doc *jsx.Document) {
	if c.index == nil || c.index.Current(c.branchID, p, content) {
		return
	}
	if err := c.index.IndexFile(c.branchID, p, content, doc.Metadata()); err != nil {
		c.log.Warn("failed to index file", "path", p, "error", err)
	}
}

// ElementMetadata resolves oid through the index. It returns nil without
// error when the oid is unknown.
func (c *CodeFS) ElementMetadata(ctx context.Context, oid string) (*jsx.ElementMetadata, error) {
	if c.index == nil {
		return nil, nil
	}
	m, err := c.index.Lookup(c.branchID, oid)
	if errors.Is(err, index.ErrElementNotFound) {
		return nil, nil
	}
	return m, err
}

// DeleteFile deletes p and drops it from the index.
func (c *CodeFS) DeleteFile(ctx context.Context, p string) error {
	if err := c.FS.DeleteFile(ctx, p); err != nil {
		return err
	}
	if c.index != nil {
		if err := c.index.RemoveFile(c.branchID, Rel(p)); err != nil {
			c.log.Warn("failed to unindex file", "path", p, "error", err)
		}
	}
	return nil
}

// DeleteDirectory deletes p and drops everything under it from the index.
func (c *CodeFS) DeleteDirectory(ctx context.Context, p string) error {
	if err := c.FS.DeleteDirectory(ctx, p); err != nil {
		return err
	}
	if c.index != nil {
		if err := c.index.RemoveDirectory(c.branchID, Rel(p)); err != nil {
			c.log.Warn("failed to unindex directory", "path", p, "error", err)
		}
	}
	return nil
}

// MoveFile renames from to to and carries the index records along.
func (c *CodeFS) MoveFile(ctx context.Context, from, to string) error {
	if err := c.FS.MoveFile(ctx, from, to); err != nil {
		return err
	}
	from, to = Rel(from), Rel(to)
	c.oids.Release(from, to)
	if c.index == nil {
		return nil
	}
	if !jsx.IsJSXFile(to) {
		return c.index.RemoveFile(c.branchID, from)
	}
	return c.index.RenameFile(c.branchID, from, to)
}

// Rebuild re-indexes every JSX file of the branch from disk.
func (c *CodeFS) Rebuild(ctx context.Context) (int, error) {
	if c.index == nil {
		return 0, nil
	}
	if err := c.index.Clear(c.branchID); err != nil {
		return 0, fmt.Errorf("clearing index: %w", err)
	}
	paths, err := c.jsxFiles(ctx)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, p := range paths {
		f, err := c.FS.ReadFile(ctx, p)
		if err != nil {
			c.log.Debug("skipping unreadable file", "path", p, "error", err)
			continue
		}
		doc, err := c.parser.Parse(p, f.Content)
		if err != nil {
			c.log.Debug("skipping unparsable file", "path", p, "error", err)
			continue
		}
		for _, m := range doc.Metadata() {
			c.oids.Reserve(m.OID, p)
		}
		if err := c.index.IndexFile(c.branchID, p, f.Content, doc.Metadata()); err != nil {
			return n, fmt.Errorf("indexing %s: %w", p, err)
		}
		n++
	}
	return n, nil
}

// StampAll stamps oids into every JSX file that lacks them and returns the
// paths rewritten.
func (c *CodeFS) StampAll(ctx context.Context) ([]string, error) {
	paths, err := c.jsxFiles(ctx)
	if err != nil {
		return nil, err
	}

	var changed []string
	for _, p := range paths {
		f, err := c.FS.ReadFile(ctx, p)
		if err != nil {
			return changed, err
		}
		content, doc := c.process(p, f.Content)
		if string(content) != string(f.Content) {
			if err := c.FS.WriteFile(ctx, p, content); err != nil {
				return changed, err
			}
			changed = append(changed, p)
		}
		if doc != nil {
			c.indexDocument(p, content, doc)
		}
	}
	return changed, nil
}

func (c *CodeFS) jsxFiles(ctx context.Context) ([]string, error) {
	all, err := c.FS.ListFiles(ctx, "**/*.{tsx,jsx}")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, p := range all {
		if jsx.IsJSXFile(p) {
			out = append(out, p)
		}
	}
	return out, nil
}
