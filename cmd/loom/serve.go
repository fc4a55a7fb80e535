package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/files"
	"loom/internal/provider"
	"loom/internal/sandbox"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a project directory as a sandbox",
	Long: `Serve exposes the project directory over the sandbox file protocol so that
'loom sync' on another machine can mirror it.

Examples:
  loom serve --dir ./app --listen :7450
  LOOM_TOKEN=secret loom serve --dir ./app`,
	RunE: runServe,
}

var (
	serveListen string
	serveToken  string
)

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Address to listen on (default: :7450)")
	serveCmd.Flags().StringVar(&serveToken, "token", "", "Bearer token clients must present")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("listen") {
		cfg.Listen = serveListen
	}
	if cmd.Flags().Changed("token") {
		cfg.Token = serveToken
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	fsys, err := files.New(cfg.Root)
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	dir := provider.NewDir(fsys,
		provider.WithDebounce(cfg.Sync.Debounce),
		provider.WithLogger(log),
	)
	srv := sandbox.NewServer(dir,
		sandbox.WithToken(cfg.Token),
		sandbox.WithVersion(Version),
		sandbox.WithLogger(log),
	)

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	log.Info("serving sandbox", "root", fsys.Root(), "listen", cfg.Listen, "auth", cfg.Token != "")
	return srv.ListenAndServe(ctx, cfg.Listen)
}
