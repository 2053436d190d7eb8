// Package cli implements scoreboardctl, the operator command line for the
// scoreboard: read-only views and exports straight from the store, the
// consistency check, password hashing and load simulation.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	service "github.com/okian/scoreboard/internal/app"
	"github.com/okian/scoreboard/internal/bootstrap"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/pkg/logger"
)

// ErrDrift is returned by check when stored rows disagree with the match log.
var ErrDrift = errors.New("stored totals drift from the match log")

// options are the persistent flags shared by every command.
type options struct {
	store   string
	dsn     string
	verbose bool
}

// NewRootCommand builds the scoreboardctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "scoreboardctl",
		Short:         "Scoreboard operator tool",
		Long:          "Inspect, check and export the scoreboard store, and drive a running server with simulated games.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}
			level := "warn"
			if opts.verbose {
				level = "debug"
			}
			return logger.SetLevelString(level)
		},
	}
	root.PersistentFlags().StringVar(&opts.store, "store", "", "store backend (memory, sqlite, postgres); overrides SCOREBOARD_STORE")
	root.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "store connection string; overrides SCOREBOARD_DSN")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newLeaderboardCmd(opts),
		newRolesCmd(opts),
		newMatchesCmd(opts),
		newCheckCmd(opts),
		newExportCmd(opts),
		newHashPasswordCmd(),
		newSimulateCmd(),
	)
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withService opens the configured store, runs fn against a started service
// and closes everything again.
func (o *options) withService(ctx context.Context, fn func(context.Context, *service.Service) error) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}
	if o.store != "" {
		cfg.Store = o.store
	}
	if o.dsn != "" {
		cfg.DSN = o.dsn
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, backend, err := bootstrap.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	svc := bootstrap.NewService(cfg, store, backend)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return err
	}
	defer svc.Stop()
	return fn(ctx, svc)
}

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
