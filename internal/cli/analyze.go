package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"foodpulse/internal/app"
	"foodpulse/internal/config"
	"foodpulse/internal/pipeline"
)

type analyzeOptions struct {
	stages          []string
	continueOnError bool
	jsonOutput      bool
	periods         int
	clusters        int
}

func newAnalyzeCommand(opts *globalOptions) *cobra.Command {
	o := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run the pipeline and write every artifact",
		Long: `Runs the ETL followed by the dashboard summary, the revenue forecast,
customer segmentation and feature attribution, then writes the workbook
report. --stage limits the run to the named stages and their dependencies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := opts.newApplication(ctx, app.Options{
				NoTelemetry:     true,
				ContinueOnError: o.continueOnError,
			}, func(cfg *config.Config) {
				if cmd.Flags().Changed("periods") {
					cfg.Analytics.ForecastPeriods = o.periods
				}
				if cmd.Flags().Changed("clusters") {
					cfg.Analytics.SegmentCount = o.clusters
				}
			})
			if err != nil {
				return err
			}
			defer a.Close(ctx)

			state, runErr := a.RunPipeline(ctx, o.stages)
			if state == nil {
				return runErr
			}

			resp := state.Response()
			out := cmd.OutOrStdout()
			if o.jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(resp); err != nil {
					return err
				}
			} else {
				printRun(cmd, resp)
			}

			if runErr != nil {
				return runErr
			}
			if resp.Status != pipeline.RunStatusCompleted {
				return fmt.Errorf("run %s finished with status %s", resp.ID, resp.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&o.stages, "stage", nil, "stage to run (repeatable); default runs every stage")
	cmd.Flags().BoolVar(&o.continueOnError, "continue-on-error", false, "keep running independent stages after a failure")
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "print the run as JSON")
	cmd.Flags().IntVar(&o.periods, "periods", config.DefaultForecastPeriods, "forecast horizon in days")
	cmd.Flags().IntVar(&o.clusters, "clusters", config.DefaultSegmentCount, "number of customer segments")
	return cmd
}

func printRun(cmd *cobra.Command, resp *pipeline.RunResponse) {
	out := cmd.OutOrStdout()
	printf(out, "Run %s: %s in %s\n", resp.ID, resp.Status, resp.Duration)
	for _, id := range resp.Order {
		st := resp.Stages[id]
		if st == nil {
			continue
		}
		line := fmt.Sprintf("  %-10s %s", id, st.Status)
		if st.Error != "" {
			line += "  " + st.Error
		}
		printf(out, "%s\n", line)

		keys := make([]string, 0, len(st.Metadata))
		for k := range st.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			printf(out, "      %s: %v\n", k, st.Metadata[k])
		}
	}
}
