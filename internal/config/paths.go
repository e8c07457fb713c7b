package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Paths contains every file system location the pipeline touches.
// It is the single source of truth for file paths in the application.
type Paths struct {
	BaseDir   string
	DataDir   string
	OutputDir string
	LogsDir   string

	// Source files
	OrdersFile      string
	UsersFile       string
	RestaurantsFile string

	// Artifacts
	AnalyticsFile string
	ReportFile    string
}

// GetPaths resolves the configured paths. Relative directories are joined
// onto BaseDir, which defaults to the current working directory.
func GetPaths(cfg PathsConfig) (*Paths, error) {
	base := cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}

	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolve := func(dir, fallback string) string {
		if dir == "" {
			dir = fallback
		}
		if filepath.IsAbs(dir) {
			return dir
		}
		return filepath.Join(base, dir)
	}
	file := func(dir, name, fallback string) string {
		if name == "" {
			name = fallback
		}
		if filepath.IsAbs(name) {
			return name
		}
		return filepath.Join(dir, name)
	}

	dataDir := resolve(cfg.DataDir, DefaultDataDir)
	outputDir := resolve(cfg.OutputDir, DefaultOutputDir)

	return &Paths{
		BaseDir:   base,
		DataDir:   dataDir,
		OutputDir: outputDir,
		LogsDir:   resolve(cfg.LogsDir, DefaultLogsDir),

		OrdersFile:      file(dataDir, cfg.OrdersFile, OrdersFileName),
		UsersFile:       file(dataDir, cfg.UsersFile, UsersFileName),
		RestaurantsFile: file(dataDir, cfg.RestaurantsFile, RestaurantsFileName),

		AnalyticsFile: file(outputDir, cfg.AnalyticsFile, AnalyticsFileName),
		ReportFile:    file(outputDir, cfg.ReportFile, ReportFileName),
	}, nil
}

// EnsureDirectories creates the output and logs directories if they don't exist.
// The data directory is an input and is never created.
func (p *Paths) EnsureDirectories() error {
	logger := slog.Default()

	for _, dir := range []string{p.OutputDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		logger.Debug("Ensured directory exists", slog.String("directory", dir))
	}

	return nil
}

// GetOutputPath returns the path for a file in the output directory
func (p *Paths) GetOutputPath(filename string) string {
	return filepath.Join(p.OutputDir, filename)
}

// GetLogPath returns the path for a log file
func (p *Paths) GetLogPath(filename string) string {
	return filepath.Join(p.LogsDir, filename)
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// ValidateSourceFiles checks that every source file exists
func (p *Paths) ValidateSourceFiles() error {
	sources := []struct {
		name string
		path string
	}{
		{"orders", p.OrdersFile},
		{"users", p.UsersFile},
		{"restaurants", p.RestaurantsFile},
	}

	var missing []string
	for _, s := range sources {
		if !FileExists(s.path) {
			missing = append(missing, fmt.Sprintf("%s (%s)", s.name, s.path))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("source files missing: %s", strings.Join(missing, ", "))
	}

	return nil
}

// LogPathResolution logs the resolved paths for debugging
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("Path resolution summary",
		slog.Group("directories",
			slog.String("base", p.BaseDir),
			slog.String("data", p.DataDir),
			slog.String("output", p.OutputDir),
			slog.String("logs", p.LogsDir),
		),
		slog.Group("sources",
			slog.String("orders", p.OrdersFile),
			slog.String("users", p.UsersFile),
			slog.String("restaurants", p.RestaurantsFile),
		),
		slog.Group("artifacts",
			slog.String("analytics", p.AnalyticsFile),
			slog.String("report", p.ReportFile),
		))
}
