package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"loom/internal/files"
	"loom/internal/index"
	"loom/internal/jsx"
	"loom/internal/remote"
	"loom/internal/syncengine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror a remote sandbox into the project directory",
	Long: `Sync pulls the sandbox into the project directory, then keeps both sides in
sync until interrupted. JSX files pulled from the sandbox get data-oid markers
stamped in and are indexed; the stamped files are pushed back.

Examples:
  loom sync --remote http://sandbox:7450 --dir ./app
  loom sync --remote https://sb.example.com --token secret --exclude coverage`,
	RunE: runSync,
}

var (
	syncRemote       string
	syncToken        string
	syncSandbox      string
	syncExclude      []string
	syncInclude      []string
	syncPushModified bool
)

func init() {
	syncCmd.Flags().StringVar(&syncRemote, "remote", "", "Sandbox server URL")
	syncCmd.Flags().StringVar(&syncToken, "token", "", "Sandbox bearer token")
	syncCmd.Flags().StringVar(&syncSandbox, "sandbox", "", "Sandbox ID")
	syncCmd.Flags().StringSliceVar(&syncExclude, "exclude", nil, "Additional directories to exclude")
	syncCmd.Flags().StringSliceVar(&syncInclude, "include", nil, "Only sync paths under these prefixes")
	syncCmd.Flags().BoolVar(&syncPushModified, "push-modified", true, "Push locally modified JSX files after the initial pull")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("remote") {
		cfg.RemoteURL = syncRemote
	}
	if flags.Changed("token") {
		cfg.Token = syncToken
	}
	if flags.Changed("sandbox") {
		cfg.SandboxID = syncSandbox
	}
	if flags.Changed("exclude") {
		cfg.Sync.Exclude = append(cfg.Sync.Exclude, syncExclude...)
	}
	if flags.Changed("include") {
		cfg.Sync.Include = syncInclude
	}
	if flags.Changed("push-modified") {
		cfg.Sync.PushModified = syncPushModified
	}
	if cfg.RemoteURL == "" {
		return errors.New("no sandbox URL: pass --remote or set LOOM_REMOTE_URL")
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	client := remote.NewClient(cfg.RemoteURL, cfg.Token)
	client.Logger = log
	health, err := client.Health(ctx)
	if err != nil {
		return fmt.Errorf("reaching sandbox: %w", err)
	}
	log.Info("connected to sandbox", "url", cfg.RemoteURL, "version", health.Version)

	fsys, err := files.New(cfg.Root)
	if err != nil {
		return fmt.Errorf("opening project: %w", err)
	}
	ix, err := index.Open(cfg.IndexFile())
	if err != nil {
		return err
	}
	defer ix.Close()
	local := files.NewCodeFS(fsys, cfg.BranchID, ix, jsx.NewParser(), jsx.NewOIDGenerator(), log)

	engines := syncengine.NewRegistry(log)
	engine := engines.Acquire(cfg.SandboxID, client, local, cfg.Sync, syncengine.WithLogger(log))
	defer engines.Release(engine.Key())

	if err := engine.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Syncing %s <-> %s (Ctrl-C to stop)\n", cfg.RemoteURL, fsys.Root())

	<-ctx.Done()
	log.Info("stopping sync")
	return nil
}
