package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"foodpulse/internal/app"
	"foodpulse/internal/config"
)

func newServeCommand(opts *globalOptions) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard API",
		Long: `Serves the analytics API over HTTP. The last analytics table is loaded at
startup; POST /api/pipeline/run rebuilds it in the background.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := opts.newApplication(ctx, app.Options{}, func(cfg *config.Config) {
				if cmd.Flags().Changed("port") {
					cfg.Server.Port = port
				}
			})
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			return a.Serve(ctx)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "HTTP port")
	return cmd
}
