package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value, ok := lookup(envName, field.Tag.Get("envAlt"))
		if !ok {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}

		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// lookup tries the primary env var, then the alternate. Empty values count as unset.
func lookup(name, alt string) (string, bool) {
	if v := os.Getenv(name); v != "" {
		return v, true
	}
	if alt != "" {
		if v := os.Getenv(alt); v != "" {
			return v, true
		}
	}
	return "", false
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		field.SetInt(i)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	} else if _, err := url.Parse(c.Database.URL); err != nil {
		errs = append(errs, "DATABASE_URL is not a valid URL")
	}
	if c.Database.MaxConns < 0 {
		errs = append(errs, "DB_MAX_CONNS must be non-negative")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns > 0 && c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.ConnectRetries < 0 {
		errs = append(errs, "DB_CONNECT_RETRIES must be non-negative")
	}
	if c.Database.ConnectRetryInterval < 0 {
		errs = append(errs, "DB_CONNECT_RETRY_INTERVAL must be non-negative")
	}

	// Pipeline
	if c.Pipeline.Root == "" {
		errs = append(errs, "DATA_ROOT is required")
	}
	if c.Pipeline.Parallelism < 0 {
		errs = append(errs, "PIPELINE_PARALLELISM must be non-negative")
	}
	if d := c.Pipeline.Delimiter; d != "" && len([]rune(unescapeDelimiter(d))) != 1 {
		errs = append(errs, fmt.Sprintf("DATASET_DELIMITER (%q) must be a single character", d))
	}

	// Report
	if c.Report.File == "" {
		errs = append(errs, "REPORT_FILE is required")
	}
	if c.Report.MaxSamples < 0 {
		errs = append(errs, "REPORT_MAX_SAMPLES must be non-negative")
	}

	// Status server
	if c.Status.Addr != "" && c.Status.ShutdownTimeout <= 0 {
		errs = append(errs, "STATUS_SHUTDOWN_TIMEOUT must be positive")
	}

	// Logging
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// ReportPath returns the absolute-or-root-relative location of the error report.
func (c *Config) ReportPath() string {
	if filepath.IsAbs(c.Report.File) {
		return c.Report.File
	}
	return filepath.Join(c.Pipeline.Root, c.Report.File)
}

// DelimiterRune returns the configured delimiter override, or 0 when unset.
// The escape sequence `\t` is accepted so the tab can be set from a shell.
func (c *Config) DelimiterRune() rune {
	d := unescapeDelimiter(c.Pipeline.Delimiter)
	if d == "" {
		return 0
	}
	return []rune(d)[0]
}

func unescapeDelimiter(d string) string {
	if d == `\t` {
		return "\t"
	}
	return d
}

// String returns a safe string representation of the config for logging.
// The database URL is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("Pipeline: {Root: %q, Datasets: %q, Parallelism: %d, Resume: %q, One: %v, DryRun: %v}, ",
		c.Pipeline.Root, c.Pipeline.DatasetsFile, c.Pipeline.Parallelism, c.Pipeline.Resume, c.Pipeline.One, c.Pipeline.DryRun))
	b.WriteString(fmt.Sprintf("Report: {File: %q, MaxSamples: %d}, ", c.Report.File, c.Report.MaxSamples))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}
