package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/formulary/internal/ir"
)

// RecomputeOptions holds flags for the recompute command.
type RecomputeOptions struct {
	*RootOptions
	IDs []string
}

// NewRecomputeCommand creates the recompute command.
func NewRecomputeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RecomputeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Recompute derived fields for every record",
		Long: `Recompute derived fields with the active formulas.

Use --ids to retry only the records a previous run reported as failed.

Exit codes:
  0 - All records recomputed
  1 - One or more records failed and kept their previous values
  2 - Command error

Examples:
  formulary recompute
  formulary recompute --ids rec-1,rec-7`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecompute(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.IDs, "ids", nil, "only recompute these record ids")

	return cmd
}

func runRecompute(opts *RecomputeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	return withApp(opts.RootOptions, cmd, func(ctx context.Context, app *App) error {
		var (
			report ir.RecomputeReport
			err    error
		)
		if len(opts.IDs) > 0 {
			formatter.VerboseLog("recomputing %d record(s)", len(opts.IDs))
			report, err = app.Catalog.RecomputeRecords(ctx, opts.IDs)
		} else {
			report, err = app.Catalog.Recompute(ctx)
		}
		if err != nil {
			return registryFailure(formatter, err)
		}
		return formatter.Report(report)
	})
}
