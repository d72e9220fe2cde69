package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/okian/signpost/internal/app"
)

func newMigrateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := opts.load(ctx)
			if err != nil {
				return err
			}
			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %s database\n", store.Driver())
			return nil
		},
	}
}
