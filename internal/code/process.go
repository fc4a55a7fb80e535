package code

import (
	"context"
	"fmt"
	"log/slog"

	"loom/internal/jsx"
	"loom/internal/models"
)

// ProcessGroupedRequests parses each grouped file once, applies all of its
// requests in one pass and prints it. Both sides of each diff are printed,
// so a group without requests yields an unchanged diff. Diffs are returned in group order.
// Requests whose oid is no longer in the file are logged and skipped.
func ProcessGroupedRequests(ctx context.Context, parser *jsx.Parser, groups *FileToRequests, logger *slog.Logger) ([]models.CodeDiff, error) {
	if logger == nil {
		logger = slog.Default()
	}

	diffs := make([]models.CodeDiff, 0, groups.Len())
	for _, g := range groups.Groups() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := parser.Parse(g.Key.Path, g.File.Content)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.Key.Path, err)
		}
		// Printed before mutating so formatting-only differences in the
		// file never surface as a diff.
		original := doc.Render()
		missing, err := doc.Apply(g.Requests)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", g.Key.Path, err)
		}
		for _, oid := range missing {
			logger.Warn("element not found in file", "oid", oid, "path", g.Key.Path, "branch", g.Key.BranchID)
		}

		diffs = append(diffs, models.CodeDiff{
			Original:  original,
			Generated: doc.Render(),
			Path:      g.Key.Path,
		})
	}
	return diffs, nil
}

// WriteDiffs writes each changed diff through the editor of its group.
// Diffs are matched to groups by position, falling back to the path.
func WriteDiffs(ctx context.Context, diffs []models.CodeDiff, groups *FileToRequests) error {
	all := groups.Groups()
	for i, d := range diffs {
		var g *FileGroup
		if i < len(all) && all[i].Key.Path == d.Path {
			g = all[i]
		} else {
			for _, cand := range all {
				if cand.Key.Path == d.Path {
					g = cand
					break
				}
			}
		}
		if g == nil {
			return fmt.Errorf("%w: %s", ErrNoRequestGroup, d.Path)
		}
		if !d.Changed() {
			continue
		}
		if err := g.Editor.WriteFile(ctx, d.Path, []byte(d.Generated)); err != nil {
			return fmt.Errorf("writing %s: %w", d.Path, err)
		}
	}
	return nil
}
