package cli

import (
	"time"

	"github.com/spf13/cobra"

	"foodpulse/internal/app"
)

func newETLCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "etl",
		Short: "Merge the sources into the analytics table",
		Long: `Loads orders.csv, users.json and restaurants.sql, left-joins users and
restaurants onto orders and writes the analytics CSV.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := opts.newApplication(ctx, app.Options{NoTelemetry: true}, nil)
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			res, err := a.BuildAnalytics(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printf(out, "Rows: %d, Columns: %d\n", res.Stats.Rows, res.Stats.Columns)
			printf(out, "Wrote %s in %s\n", res.OutputPath, res.Duration.Round(time.Millisecond))
			printf(out, "Orders without a matching user: %d\n", res.Stats.UnmatchedUsers)
			printf(out, "Orders without a matching restaurant: %d\n", res.Stats.UnmatchedRestaurants)
			return nil
		},
	}
}
