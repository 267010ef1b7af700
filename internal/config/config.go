// Package config provides configuration types and defaults for fieldcore.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/fieldcore/internal/log"
	"github.com/zjrosen/fieldcore/internal/tracing"
)

// Config holds all configuration options for fieldcore.
type Config struct {
	// SchemaDir is the directory holding the entity definition files.
	// Default: ./schema
	SchemaDir string `mapstructure:"schema_dir"`

	// AutoReload revalidates the schema when definition files change.
	AutoReload bool `mapstructure:"auto_reload"`

	Log     LogConfig      `mapstructure:"log"`
	Tracing tracing.Config `mapstructure:"tracing"`
	Watcher WatcherConfig  `mapstructure:"watcher"`
}

// LogConfig holds debug logging options.
type LogConfig struct {
	// Enabled turns on debug logging to Path.
	Enabled bool `mapstructure:"enabled"`

	// Path is the log file location.
	// Default: ./fieldcore-debug.log
	Path string `mapstructure:"path"`

	// Level is the minimum level to record.
	// Valid values: "debug", "info", "warn", "error"
	Level string `mapstructure:"level"`
}

// WatcherConfig holds schema watcher options.
type WatcherConfig struct {
	// DebounceMs coalesces bursts of file events into one notification.
	// Default: 500
	DebounceMs int `mapstructure:"debounce_ms"`
}

// Debounce returns the configured debounce as a duration, falling back to
// the default when unset.
func (w WatcherConfig) Debounce() time.Duration {
	if w.DebounceMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(w.DebounceMs) * time.Millisecond
}

// Validate checks the configuration for errors. Empty values use defaults.
func Validate(cfg Config) error {
	if err := ValidateLog(cfg.Log); err != nil {
		return err
	}
	if err := ValidateTracing(cfg.Tracing); err != nil {
		return err
	}
	if cfg.Watcher.DebounceMs < 0 {
		return fmt.Errorf("watcher.debounce_ms must not be negative, got %d", cfg.Watcher.DebounceMs)
	}
	return nil
}

// ValidateLog checks log configuration for errors.
func ValidateLog(lc LogConfig) error {
	switch lc.Level {
	case "", "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("log.level must be \"debug\", \"info\", \"warn\", or \"error\", got %q", lc.Level)
	}
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tc tracing.Config) error {
	if tc.SampleRate < 0.0 || tc.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tc.SampleRate)
	}

	if tc.Exporter != "" {
		switch tc.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tc.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tc.Enabled {
		if tc.Exporter == "file" && tc.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tc.Exporter == "otlp" && tc.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		SchemaDir:  "schema",
		AutoReload: true,
		Log: LogConfig{
			Enabled: false,
			Path:    "fieldcore-debug.log",
			Level:   "debug",
		},
		Tracing: tracing.DefaultConfig(),
		Watcher: WatcherConfig{
			DebounceMs: 500,
		},
	}
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Fieldcore Configuration

# Directory holding the entity definition files (one YAML file per type)
schema_dir: schema

# Revalidate the schema when definition files change (fieldcore watch)
auto_reload: true

# Debug logging
log:
  enabled: false
  path: fieldcore-debug.log
  level: debug   # debug, info, warn, or error

# Distributed tracing
# Each cache-missing field resolution is recorded as a span
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: stdout               # Export backend: none, file, stdout, otlp
#   file_path: traces.jsonl        # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)

# Schema watcher
watcher:
  debounce_ms: 500   # Coalesce bursts of file events into one revalidation
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
