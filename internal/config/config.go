// Package config provides centralized configuration management for the loader.
// It reads environment variables with sensible defaults, lets the command line
// override them, and validates everything before a run touches any state.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Database DatabaseConfig
	Pipeline PipelineConfig
	Report   ReportConfig
	Status   StatusConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds relational store connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 0, derived from parallelism)
	MaxConns int `env:"DB_MAX_CONNS" default:"0"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// ConnectRetries is how many extra pings are attempted before the store is declared unreachable (default: 3)
	ConnectRetries int `env:"DB_CONNECT_RETRIES" default:"3"`

	// ConnectRetryInterval is the pause between pings (default: 2s)
	ConnectRetryInterval time.Duration `env:"DB_CONNECT_RETRY_INTERVAL" default:"2s"`
}

// PipelineConfig holds normalization and load settings.
type PipelineConfig struct {
	// Root is the directory holding the extracted source files and all intermediate artifacts
	Root string `env:"DATA_ROOT" default:"."`

	// DatasetsFile is an optional YAML manifest of source files; empty uses the built-in IMDB manifest
	DatasetsFile string `env:"DATASETS_FILE"`

	// Delimiter is the source field separator; overrides the manifest when set
	Delimiter string `env:"DATASET_DELIMITER"`

	// Quoted enables CSV quote handling in source files (default: false, IMDB files are unquoted)
	Quoted bool `env:"DATASET_QUOTED" default:"false"`

	// Parallelism is the worker count for splitting and loading (default: 0, one per CPU)
	Parallelism int `env:"PIPELINE_PARALLELISM" default:"0"`

	// Resume is the table to restart from; empty means a full run
	Resume string `env:"PIPELINE_RESUME"`

	// One restricts the run to the first table of the load window
	One bool `env:"PIPELINE_ONE" default:"false"`

	// DryRun skips the physical bulk copy
	DryRun bool `env:"PIPELINE_DRY_RUN" default:"false"`

	// Migrate applies the schema before loading (default: true)
	Migrate bool `env:"PIPELINE_MIGRATE" default:"true"`
}

// ReportConfig holds rejected-record report settings.
type ReportConfig struct {
	// File is where the error report is written; relative paths are under DATA_ROOT (default: rejected.json)
	File string `env:"REPORT_FILE" default:"rejected.json"`

	// MaxSamples caps the rejected records kept per table; 0 keeps counts only (default: 1000)
	MaxSamples int `env:"REPORT_MAX_SAMPLES" default:"1000"`
}

// StatusConfig holds the optional run status server settings.
type StatusConfig struct {
	// Addr is the listen address, e.g. ":9100"; empty disables the server
	Addr string `env:"STATUS_ADDR"`

	// ShutdownTimeout bounds the status server shutdown (default: 5s)
	ShutdownTimeout time.Duration `env:"STATUS_SHUTDOWN_TIMEOUT" default:"5s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}
