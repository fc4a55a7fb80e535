package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stampCmd = &cobra.Command{
	Use:   "stamp",
	Short: "Stamp data-oid markers into JSX files",
	Long: `Stamp adds a data-oid attribute to every JSX element that lacks one, then
indexes the files. Existing oids are kept.`,
	RunE: runStamp,
}

func runStamp(cmd *cobra.Command, args []string) error {
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
	// Reserve the oids already in use before generating new ones.
	if _, err := proj.code.Rebuild(ctx); err != nil {
		return err
	}
	changed, err := proj.code.StampAll(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, p := range changed {
		fmt.Fprintln(out, p)
	}
	fmt.Fprintf(out, "Stamped %d file(s)\n", len(changed))
	return nil
}
