// Package cli implements signpostctl, the operator command line.
package cli

import (
	"context"

	"github.com/spf13/cobra"

	app "github.com/okian/signpost/internal/app"
	"github.com/okian/signpost/internal/config"
	"github.com/okian/signpost/pkg/logger"
)

// options are the persistent flags shared by every command.
type options struct {
	configPath string
	verbose    bool
}

// NewRootCommand builds the signpostctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "signpostctl",
		Short: "Operate the signpost evidence pipeline",
		Long: `signpostctl runs maintenance tasks against the signpost database:
migrations, bulk ingestion, retractions, snapshot recomputation and
publisher credibility.

Configuration is read from defaults, the YAML file named by --config or
SIGNPOST_CONFIG, and SIGNPOST_* environment variables.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.Init(logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return err
			}
			if opts.verbose {
				return logger.SetLevelString("debug")
			}
			return logger.SetLevelString("warn")
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: $SIGNPOST_CONFIG)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")

	root.AddCommand(
		newMigrateCommand(opts),
		newIngestCommand(opts),
		newRetractCommand(opts),
		newRecomputeCommand(opts),
		newCredibilityCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (o *options) load(ctx context.Context) (*config.Config, error) {
	if o.configPath != "" {
		return config.LoadFrom(ctx, o.configPath)
	}
	return config.Load(ctx)
}

// withService opens the configured service for the duration of fn.
func (o *options) withService(ctx context.Context, fn func(*app.Service) error) error {
	cfg, err := o.load(ctx)
	if err != nil {
		return err
	}
	// Scheduled recomputation belongs to the server.
	cfg.RecomputeIntervalSeconds = 0
	svc, closeStore, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeStore() }()
	return fn(svc)
}
