package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Sources   SourcesConfig   `yaml:"sources" envconfig:"SOURCES"`
	Analytics AnalyticsConfig `yaml:"analytics" envconfig:"ANALYTICS"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int             `yaml:"port" envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration   `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration   `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration   `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimit       RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	// AllowedOrigins limits browser origins on /ws/pipeline; empty allows all
	AllowedOrigins []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED" default:"true"`
	RPS     float64 `yaml:"rps" envconfig:"RPS" default:"20"`
	Burst   int     `yaml:"burst" envconfig:"BURST" default:"40"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/foodpulse.log"`
}

// PathsConfig contains file system paths configuration.
// Relative entries are resolved against BaseDir (the working directory when empty).
type PathsConfig struct {
	BaseDir         string `yaml:"base_dir" envconfig:"BASE_DIR"`
	DataDir         string `yaml:"data_dir" envconfig:"DATA_DIR" default:"data"`
	OutputDir       string `yaml:"output_dir" envconfig:"OUTPUT_DIR" default:"output"`
	LogsDir         string `yaml:"logs_dir" envconfig:"LOGS_DIR" default:"logs"`
	OrdersFile      string `yaml:"orders_file" envconfig:"ORDERS_FILE" default:"orders.csv"`
	UsersFile       string `yaml:"users_file" envconfig:"USERS_FILE" default:"users.json"`
	RestaurantsFile string `yaml:"restaurants_file" envconfig:"RESTAURANTS_FILE" default:"restaurants.sql"`
	AnalyticsFile   string `yaml:"analytics_file" envconfig:"ANALYTICS_FILE" default:"final_food_delivery_dataset.csv"`
	ReportFile      string `yaml:"report_file" envconfig:"REPORT_FILE" default:"food_delivery_report.xlsx"`
}

// SourcesConfig selects where restaurant master data comes from.
// With an empty DSN the bundled SQL script is executed against an ephemeral store.
type SourcesConfig struct {
	RestaurantsDriver string `yaml:"restaurants_driver" envconfig:"RESTAURANTS_DRIVER" default:"pgx"`
	RestaurantsDSN    string `yaml:"restaurants_dsn" envconfig:"RESTAURANTS_DSN"`
	RestaurantsTable  string `yaml:"restaurants_table" envconfig:"RESTAURANTS_TABLE" default:"restaurants"`
}

// AnalyticsConfig holds the default parameters handed to each transform call
type AnalyticsConfig struct {
	ForecastPeriods   int      `yaml:"forecast_periods" envconfig:"FORECAST_PERIODS" default:"30"`
	ForecastInterval  float64  `yaml:"forecast_interval" envconfig:"FORECAST_INTERVAL" default:"0.8"`
	SegmentCount      int      `yaml:"segment_count" envconfig:"SEGMENT_COUNT" default:"4"`
	SegmentSeed       uint64   `yaml:"segment_seed" envconfig:"SEGMENT_SEED" default:"42"`
	ExplainTrees      int      `yaml:"explain_trees" envconfig:"EXPLAIN_TREES" default:"100"`
	ExplainSeed       uint64   `yaml:"explain_seed" envconfig:"EXPLAIN_SEED" default:"42"`
	ExplainFeatures   []string `yaml:"explain_features" envconfig:"EXPLAIN_FEATURES" default:"rating"`
	ExplainTarget     string   `yaml:"explain_target" envconfig:"EXPLAIN_TARGET" default:"total_amount"`
	ExplainBackground int      `yaml:"explain_background" envconfig:"EXPLAIN_BACKGROUND" default:"100"`
	OrderDateLayout   string   `yaml:"order_date_layout" envconfig:"ORDER_DATE_LAYOUT" default:"02-01-2006"`
}

// TelemetryConfig contains OpenTelemetry configuration
type TelemetryConfig struct {
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT" default:"development"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER" default:"none"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER" default:"prometheus"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" default:"1.0"`
}

// Load loads configuration from environment variables and config file.
// Environment values win over the file; the file wins over defaults.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if configFile := getConfigFilePath(); configFile != "" {
		fileConfig, err := loadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileConfig, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadFromFile loads configuration from YAML file
func loadFromFile(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs fills values from the file wherever the environment did not
// override the envconfig default.
func mergeConfigs(fileConfig, envConfig Config) Config {
	defaults := Default()

	pickInt := func(env, file, def int) int {
		if env == def && file != 0 {
			return file
		}
		return env
	}
	pickString := func(env, file, def string) string {
		if env == def && file != "" {
			return file
		}
		return env
	}
	pickFloat := func(env, file, def float64) float64 {
		if env == def && file != 0 {
			return file
		}
		return env
	}
	pickDuration := func(env, file, def time.Duration) time.Duration {
		if env == def && file != 0 {
			return file
		}
		return env
	}

	e, f, d := &envConfig, &fileConfig, defaults

	e.Server.Port = pickInt(e.Server.Port, f.Server.Port, d.Server.Port)
	e.Server.ReadTimeout = pickDuration(e.Server.ReadTimeout, f.Server.ReadTimeout, d.Server.ReadTimeout)
	e.Server.WriteTimeout = pickDuration(e.Server.WriteTimeout, f.Server.WriteTimeout, d.Server.WriteTimeout)
	e.Server.IdleTimeout = pickDuration(e.Server.IdleTimeout, f.Server.IdleTimeout, d.Server.IdleTimeout)
	e.Server.ShutdownTimeout = pickDuration(e.Server.ShutdownTimeout, f.Server.ShutdownTimeout, d.Server.ShutdownTimeout)
	e.Server.RateLimit.RPS = pickFloat(e.Server.RateLimit.RPS, f.Server.RateLimit.RPS, d.Server.RateLimit.RPS)
	e.Server.RateLimit.Burst = pickInt(e.Server.RateLimit.Burst, f.Server.RateLimit.Burst, d.Server.RateLimit.Burst)
	if len(e.Server.AllowedOrigins) == 0 {
		e.Server.AllowedOrigins = f.Server.AllowedOrigins
	}

	e.Logging.Level = pickString(e.Logging.Level, f.Logging.Level, d.Logging.Level)
	e.Logging.Output = pickString(e.Logging.Output, f.Logging.Output, d.Logging.Output)
	e.Logging.FilePath = pickString(e.Logging.FilePath, f.Logging.FilePath, d.Logging.FilePath)

	e.Paths.BaseDir = pickString(e.Paths.BaseDir, f.Paths.BaseDir, d.Paths.BaseDir)
	e.Paths.DataDir = pickString(e.Paths.DataDir, f.Paths.DataDir, d.Paths.DataDir)
	e.Paths.OutputDir = pickString(e.Paths.OutputDir, f.Paths.OutputDir, d.Paths.OutputDir)
	e.Paths.LogsDir = pickString(e.Paths.LogsDir, f.Paths.LogsDir, d.Paths.LogsDir)
	e.Paths.OrdersFile = pickString(e.Paths.OrdersFile, f.Paths.OrdersFile, d.Paths.OrdersFile)
	e.Paths.UsersFile = pickString(e.Paths.UsersFile, f.Paths.UsersFile, d.Paths.UsersFile)
	e.Paths.RestaurantsFile = pickString(e.Paths.RestaurantsFile, f.Paths.RestaurantsFile, d.Paths.RestaurantsFile)
	e.Paths.AnalyticsFile = pickString(e.Paths.AnalyticsFile, f.Paths.AnalyticsFile, d.Paths.AnalyticsFile)
	e.Paths.ReportFile = pickString(e.Paths.ReportFile, f.Paths.ReportFile, d.Paths.ReportFile)

	e.Sources.RestaurantsDriver = pickString(e.Sources.RestaurantsDriver, f.Sources.RestaurantsDriver, d.Sources.RestaurantsDriver)
	e.Sources.RestaurantsDSN = pickString(e.Sources.RestaurantsDSN, f.Sources.RestaurantsDSN, d.Sources.RestaurantsDSN)
	e.Sources.RestaurantsTable = pickString(e.Sources.RestaurantsTable, f.Sources.RestaurantsTable, d.Sources.RestaurantsTable)

	e.Analytics.ForecastPeriods = pickInt(e.Analytics.ForecastPeriods, f.Analytics.ForecastPeriods, d.Analytics.ForecastPeriods)
	e.Analytics.ForecastInterval = pickFloat(e.Analytics.ForecastInterval, f.Analytics.ForecastInterval, d.Analytics.ForecastInterval)
	e.Analytics.SegmentCount = pickInt(e.Analytics.SegmentCount, f.Analytics.SegmentCount, d.Analytics.SegmentCount)
	e.Analytics.ExplainTrees = pickInt(e.Analytics.ExplainTrees, f.Analytics.ExplainTrees, d.Analytics.ExplainTrees)
	e.Analytics.ExplainTarget = pickString(e.Analytics.ExplainTarget, f.Analytics.ExplainTarget, d.Analytics.ExplainTarget)
	e.Analytics.ExplainBackground = pickInt(e.Analytics.ExplainBackground, f.Analytics.ExplainBackground, d.Analytics.ExplainBackground)
	e.Analytics.OrderDateLayout = pickString(e.Analytics.OrderDateLayout, f.Analytics.OrderDateLayout, d.Analytics.OrderDateLayout)
	if e.Analytics.SegmentSeed == d.Analytics.SegmentSeed && f.Analytics.SegmentSeed != 0 {
		e.Analytics.SegmentSeed = f.Analytics.SegmentSeed
	}
	if e.Analytics.ExplainSeed == d.Analytics.ExplainSeed && f.Analytics.ExplainSeed != 0 {
		e.Analytics.ExplainSeed = f.Analytics.ExplainSeed
	}
	if strings.Join(e.Analytics.ExplainFeatures, ",") == strings.Join(d.Analytics.ExplainFeatures, ",") && len(f.Analytics.ExplainFeatures) > 0 {
		e.Analytics.ExplainFeatures = f.Analytics.ExplainFeatures
	}

	e.Telemetry.Environment = pickString(e.Telemetry.Environment, f.Telemetry.Environment, d.Telemetry.Environment)
	e.Telemetry.TraceExporter = pickString(e.Telemetry.TraceExporter, f.Telemetry.TraceExporter, d.Telemetry.TraceExporter)
	e.Telemetry.MetricExporter = pickString(e.Telemetry.MetricExporter, f.Telemetry.MetricExporter, d.Telemetry.MetricExporter)
	e.Telemetry.SampleRatio = pickFloat(e.Telemetry.SampleRatio, f.Telemetry.SampleRatio, d.Telemetry.SampleRatio)

	return envConfig
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Analytics.ForecastPeriods < 0 {
		return fmt.Errorf("forecast periods must not be negative: %d", c.Analytics.ForecastPeriods)
	}

	if c.Analytics.ForecastInterval <= 0 || c.Analytics.ForecastInterval >= 1 {
		return fmt.Errorf("forecast interval must be in (0, 1): %v", c.Analytics.ForecastInterval)
	}

	if c.Analytics.SegmentCount < 1 {
		return fmt.Errorf("segment count must be at least 1: %d", c.Analytics.SegmentCount)
	}

	if c.Analytics.ExplainTrees < 1 {
		return fmt.Errorf("explain trees must be at least 1: %d", c.Analytics.ExplainTrees)
	}

	if len(c.Analytics.ExplainFeatures) == 0 {
		return fmt.Errorf("at least one explain feature must be specified")
	}

	// JSON is the only supported log format
	if c.Logging.Format != "json" {
		c.Logging.Format = "json"
	}

	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}

	return nil
}

// getConfigFilePath returns the path to the config file, or "" when none exists
func getConfigFilePath() string {
	if explicit := os.Getenv(EnvPrefix + "_CONFIG_FILE"); explicit != "" {
		return explicit
	}

	locations := []string{
		"foodpulse.yaml",
		"configs/foodpulse.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     20,
				Burst:   40,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/foodpulse.log",
		},
		Paths: PathsConfig{
			DataDir:         DefaultDataDir,
			OutputDir:       DefaultOutputDir,
			LogsDir:         DefaultLogsDir,
			OrdersFile:      OrdersFileName,
			UsersFile:       UsersFileName,
			RestaurantsFile: RestaurantsFileName,
			AnalyticsFile:   AnalyticsFileName,
			ReportFile:      ReportFileName,
		},
		Sources: SourcesConfig{
			RestaurantsDriver: "pgx",
			RestaurantsTable:  RestaurantsTable,
		},
		Analytics: AnalyticsConfig{
			ForecastPeriods:   DefaultForecastPeriods,
			ForecastInterval:  DefaultForecastInterval,
			SegmentCount:      DefaultSegmentCount,
			SegmentSeed:       DefaultRandomSeed,
			ExplainTrees:      DefaultForestTrees,
			ExplainSeed:       DefaultRandomSeed,
			ExplainFeatures:   []string{"rating"},
			ExplainTarget:     "total_amount",
			ExplainBackground: DefaultBackgroundSize,
			OrderDateLayout:   OrderDateLayout,
		},
		Telemetry: TelemetryConfig{
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
	}
}
