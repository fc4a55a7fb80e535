package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the element index of the project",
	Long: `Index parses every JSX file of the project and records where each data-oid
marker lives, so actions can find their elements.

Examples:
  loom index --dir ./app
  loom index --lookup a1b2c3d`,
	RunE: runIndex,
}

var indexLookup string

func init() {
	indexCmd.Flags().StringVar(&indexLookup, "lookup", "", "Print the metadata of one oid after indexing")
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	proj, err := openProject(cfg, log)
	if err != nil {
		return err
	}
	defer proj.Close()

	ctx := cmd.Context()
	n, err := proj.code.Rebuild(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if indexLookup == "" {
		fmt.Fprintf(out, "Indexed %d file(s)\n", n)
		return nil
	}
	m, err := proj.code.ElementMetadata(ctx, indexLookup)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("no element with oid %q", indexLookup)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(m)
}
