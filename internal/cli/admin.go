package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	app "github.com/okian/signpost/internal/app"
	"github.com/okian/signpost/internal/domain/model"
	"github.com/okian/signpost/internal/domain/retraction"
)

func newRetractCommand(opts *options) *cobra.Command {
	var req retraction.Request
	cmd := &cobra.Command{
		Use:   "retract <claim-id>",
		Short: "Retract a claim and rebuild today's snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ClaimID = args[0]
			return opts.withService(cmd.Context(), func(svc *app.Service) error {
				out, err := svc.Retract(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&req.Reason, "reason", "", "why the claim is withdrawn; required unless already retracted")
	cmd.Flags().StringVar(&req.EvidenceURL, "evidence-url", "", "link to the retraction notice")
	cmd.Flags().StringVar(&req.Actor, "actor", "signpostctl", "who is retracting")
	return cmd
}

func newRecomputeCommand(opts *options) *cobra.Command {
	var preset, date string
	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute and store index snapshots",
		Long: `Recomputes the snapshot for one preset, or every configured preset,
as of a date (default today) and upserts it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(svc *app.Service) error {
				presets := []string{preset}
				if preset == "" {
					presets = svc.Presets()
				}
				out := make([]model.IndexSnapshot, 0, len(presets))
				for _, p := range presets {
					snap, err := svc.Recompute(cmd.Context(), p, date)
					if err != nil {
						return err
					}
					out = append(out, snap)
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().StringVar(&preset, "preset", "", "preset name (default: all)")
	cmd.Flags().StringVar(&date, "date", "", "as-of date YYYY-MM-DD (default: today)")
	return cmd
}

func newCredibilityCommand(opts *options) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "credibility",
		Short: "Compute publisher credibility snapshots",
		Long: `Scores every publisher over the configured window ending at the date
and inserts snapshots that do not exist yet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd.Context(), func(svc *app.Service) error {
				snaps, inserted, err := svc.RunCredibility(cmd.Context(), date)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "%d publishers scored, %d new snapshots\n", len(snaps), inserted)
				return printJSON(cmd.OutOrStdout(), snaps)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "snapshot date YYYY-MM-DD (default: today)")
	return cmd
}
