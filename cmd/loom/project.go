package main

import (
	"fmt"
	"log/slog"

	"loom/internal/config"
	"loom/internal/files"
	"loom/internal/index"
	"loom/internal/jsx"
)

// project is the code store of the configured branch.
type project struct {
	code  *files.CodeFS
	index *index.Index
}

func openProject(cfg *config.Config, log *slog.Logger) (*project, error) {
	fsys, err := files.New(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("opening project: %w", err)
	}
	ix, err := index.Open(cfg.IndexFile())
	if err != nil {
		return nil, err
	}
	return &project{
		code:  files.NewCodeFS(fsys, cfg.BranchID, ix, jsx.NewParser(), jsx.NewOIDGenerator(), log),
		index: ix,
	}, nil
}

func (p *project) Close() error {
	return p.index.Close()
}
