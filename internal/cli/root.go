package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"foodpulse/internal/app"
	"foodpulse/internal/config"
	"foodpulse/internal/infrastructure"
)

// globalOptions are the persistent flags shared by every command
type globalOptions struct {
	configFile string
	baseDir    string
	logLevel   string
}

// NewRootCommand builds the foodpulse command tree
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "foodpulse",
		Short: "Food delivery analytics pipeline",
		Long: `FoodPulse merges orders, users and restaurants into one analytics table,
then forecasts revenue, segments customers and explains order values.`,
		Example: `  # Build output/final_food_delivery_dataset.csv from data/
  $ foodpulse etl

  # Run every stage and write the workbook report
  $ foodpulse analyze

  # Serve the dashboard API on port 9000
  $ foodpulse serve --port 9000`,
		Version:       config.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "path to a YAML config file")
	flags.StringVar(&opts.baseDir, "base-dir", "", "directory that relative data and output paths resolve against")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newETLCommand(opts),
		newAnalyzeCommand(opts),
		newServeCommand(opts),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command and returns the process exit code
func Execute(ctx context.Context) int {
	root := NewRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// loadConfig applies the persistent flags on top of env and file configuration
func (o *globalOptions) loadConfig() (*config.Config, error) {
	if o.configFile != "" {
		if err := os.Setenv(config.EnvPrefix+"_CONFIG_FILE", o.configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.baseDir != "" {
		cfg.Paths.BaseDir = o.baseDir
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	return cfg, nil
}

// newApplication loads configuration, initializes logging and assembles
// the application
func (o *globalOptions) newApplication(ctx context.Context, appOpts app.Options, cfgFn func(*config.Config)) (*app.Application, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfgFn != nil {
		cfgFn(cfg)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.DebugContext(ctx, "configuration loaded",
		slog.String("base_dir", cfg.Paths.BaseDir),
		slog.String("log_level", cfg.Logging.Level))

	return app.New(ctx, cfg, logger, appOpts)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
