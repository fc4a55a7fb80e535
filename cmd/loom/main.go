// Package main provides the loom CLI.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"loom/internal/config"
	"loom/internal/logging"
)

// Version is the current loom version.
var Version = "0.3.0"

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Loom - visual editing for JSX projects",
	Long: `Loom applies visual edits to JSX source through data-oid markers and keeps
a local project directory in sync with a remote sandbox.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the loom version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "loom", Version)
	},
}

var (
	dirFlag       string
	configFlag    string
	branchFlag    string
	logLevelFlag  string
	logFormatFlag string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&dirFlag, "dir", "C", "", "Project directory (default: current directory)")
	pf.StringVar(&configFlag, "config", "", "Config file (default: <dir>/loom.yaml)")
	pf.StringVar(&branchFlag, "branch", "", "Branch ID edits are applied to")
	pf.StringVar(&logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&logFormatFlag, "log-format", "", "Log format: text, json")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(stampCmd)
}

// loadConfig loads the configuration and applies the persistent flags.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(dirFlag, configFlag)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("branch") {
		cfg.BranchID = branchFlag
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevelFlag
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = logFormatFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)
	return log, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
