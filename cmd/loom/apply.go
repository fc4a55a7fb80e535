package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"loom/internal/branch"
	"loom/internal/code"
	"loom/internal/history"
	"loom/internal/models"
)

var applyCmd = &cobra.Command{
	Use:   "apply <actions.json|actions.yaml>",
	Short: "Apply editor actions to the project source",
	Long: `Apply reads a list of editor actions and rewrites the JSX source of the
project to match. Elements are located by their data-oid markers, so run
'loom stamp' first on a project that has none.

With --revert the inverse of each action is applied, last action first,
undoing an earlier apply of the same file.

With --dry-run nothing is written; each action's diff is printed against the
files as they are on disk.

Examples:
  loom apply edits.json
  loom apply --dry-run --dir ./app edits.yaml
  loom apply --revert edits.json`,
	Args: cobra.ExactArgs(1),
	RunE: runApply,
}

var (
	applyDryRun bool
	applyRevert bool
	applyColor  bool
)

func init() {
	applyCmd.Flags().BoolVarP(&applyDryRun, "dry-run", "n", false, "Print diffs instead of writing")
	applyCmd.Flags().BoolVar(&applyRevert, "revert", false, "Apply the inverse actions in reverse order")
	applyCmd.Flags().BoolVar(&applyColor, "color", false, "Colorize --dry-run output")
}

func runApply(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading actions: %w", err)
	}
	actions, err := decodeActions(args[0], data)
	if err != nil {
		return err
	}
	if applyRevert {
		if actions, err = inverses(actions); err != nil {
			return err
		}
	}

	proj, err := openProject(cfg, log)
	if err != nil {
		return err
	}
	defer proj.Close()

	ctx := cmd.Context()
	if _, err := proj.code.Rebuild(ctx); err != nil {
		return fmt.Errorf("indexing project: %w", err)
	}

	branches := branch.NewRegistry()
	branches.Add(cfg.BranchID, proj.code)
	stderr := cmd.ErrOrStderr()
	mgr := code.NewManager(branches,
		code.WithLogger(log),
		code.WithNotifier(code.NotifierFunc(func(ctx context.Context, ce branch.CodeError) {
			fmt.Fprintf(stderr, "%s failed on branch %s: %s\n", ce.Action, ce.BranchID, ce.Message)
		})),
	)

	out := cmd.OutOrStdout()
	for i, a := range actions {
		if applyDryRun {
			diffs, err := mgr.Diffs(ctx, a)
			if err != nil {
				return fmt.Errorf("action %d (%s): %w", i, a.Kind(), err)
			}
			for _, d := range diffs {
				fmt.Fprint(out, code.UnifiedDiff(d, applyColor))
			}
			continue
		}
		if err := mgr.Write(ctx, a); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Kind(), err)
		}
	}
	if !applyDryRun {
		fmt.Fprintf(out, "Applied %d action(s) to %s\n", len(actions), proj.code.Root())
	}
	return nil
}

// decodeActions decodes a YAML sequence, a JSON array or a single JSON
// action.
func decodeActions(name string, data []byte) ([]models.Action, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return models.DecodeActionsYAML(data)
	}
	data = bytes.TrimSpace(data)
	if bytes.HasPrefix(data, []byte("[")) {
		return models.DecodeActions(data)
	}
	a, err := models.DecodeAction(data)
	if err != nil {
		return nil, err
	}
	return []models.Action{a}, nil
}

// inverses returns the actions that undo actions, in the order they must
// be applied.
func inverses(actions []models.Action) ([]models.Action, error) {
	h := history.New()
	for _, a := range actions {
		h.Push(a)
	}
	out := make([]models.Action, 0, len(actions))
	for h.CanUndo() {
		inv, err := h.Undo()
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}
