// Package config provides centralized configuration management for FoodPulse.
// It loads configuration from environment variables and an optional YAML file,
// validates it, and resolves every file path the pipeline reads or writes.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. Configuration file (YAML)
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern FOODPULSE_*:
//
//	FOODPULSE_SERVER_PORT=8080
//	FOODPULSE_LOGGING_LEVEL=debug
//	FOODPULSE_PATHS_BASE_DIR=/srv/foodpulse
//	FOODPULSE_ANALYTICS_SEGMENT_COUNT=4
//	FOODPULSE_SOURCES_RESTAURANTS_DSN=postgres://...
//
// The configuration file is looked up via FOODPULSE_CONFIG_FILE, then
// foodpulse.yaml and configs/foodpulse.yaml in the working directory.
//
// # Paths
//
// GetPaths resolves the data, output and logs directories against the base
// directory:
//
//	paths, err := config.GetPaths(cfg.Paths)
//	if err := paths.EnsureDirectories(); err != nil {
//	    return err
//	}
package config
