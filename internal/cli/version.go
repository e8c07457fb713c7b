package cli

import (
	"runtime"

	"github.com/spf13/cobra"

	"foodpulse/internal/config"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			printf(cmd.OutOrStdout(), "%s %s (%s %s/%s)\n",
				config.AppName, config.AppVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
