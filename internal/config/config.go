// Package config loads and validates the scandex TOML configuration.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/scandex/scandex/internal/exclude"
	"github.com/scandex/scandex/internal/logging"
)

// Config is the main scandex configuration.
type Config struct {
	RootPaths   []string          `toml:"root_paths"`
	Database    DatabaseConfig    `toml:"database"`
	Performance PerformanceConfig `toml:"performance"`
	Exclusions  ExclusionsConfig  `toml:"exclusions"`
	Duplicates  DuplicatesConfig  `toml:"duplicates"`
	Logging     LoggingConfig     `toml:"logging"`
}

// DatabaseConfig locates the scan database.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// PerformanceConfig tunes the parallel walk.
type PerformanceConfig struct {
	NumWorkers                int `toml:"num_workers"`
	BatchSize                 int `toml:"batch_size"`
	CheckpointIntervalSeconds int `toml:"checkpoint_interval_seconds"`
}

// ExclusionsConfig lists directory globs and extensions skipped during a
// walk.
type ExclusionsConfig struct {
	Directories []string `toml:"directories"`
	Extensions  []string `toml:"extensions"`
}

// DuplicatesConfig tunes duplicate detection. MinSize accepts humanized
// sizes ("1 MiB", "512KB").
type DuplicatesConfig struct {
	MinSize        string `toml:"min_size"`
	UsePartialHash bool   `toml:"use_partial_hash"`
	UseCache       bool   `toml:"use_cache"`
}

// LoggingConfig selects the log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Default returns the built-in configuration used when no config file is
// given.
func Default() *Config {
	workers := runtime.NumCPU() - 1
	if workers < 1 {
		workers = 1
	}
	return &Config{
		Database: DatabaseConfig{Path: "scandex.db"},
		Performance: PerformanceConfig{
			NumWorkers:                workers,
			BatchSize:                 1000,
			CheckpointIntervalSeconds: 30,
		},
		Exclusions: ExclusionsConfig{
			Directories: []string{"*/.git", "*/node_modules", "*/__pycache__", "*/.cache"},
		},
		Duplicates: DuplicatesConfig{
			MinSize:        "1 B",
			UsePartialHash: true,
			UseCache:       true,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Read decodes a Config from r on top of the defaults.
func Read(r io.Reader) (*Config, error) {
	cfg := Default()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

// Load reads a Config from the specified file path. An empty path
// returns the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors that would fail a run.
// Missing root paths are reported by the caller at scan time, not here;
// a config may legitimately list roots that exist only on another host.
func (c *Config) Validate() error {
	if c.Performance.NumWorkers < 1 {
		return fmt.Errorf("performance.num_workers must be positive, got %d", c.Performance.NumWorkers)
	}
	if c.Performance.BatchSize < 1 {
		return fmt.Errorf("performance.batch_size must be positive, got %d", c.Performance.BatchSize)
	}
	if c.Performance.CheckpointIntervalSeconds < 1 {
		return fmt.Errorf("performance.checkpoint_interval_seconds must be positive, got %d", c.Performance.CheckpointIntervalSeconds)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path must not be empty")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", c.Logging.Level)
	}
	excl := c.ExcludeConfig()
	if err := excl.Validate(); err != nil {
		return fmt.Errorf("exclusions: %w", err)
	}
	return nil
}

// WarnMissingRoots logs a warning for each configured root that does not
// exist.
func (c *Config) WarnMissingRoots(logger logging.Logger) {
	for _, root := range c.RootPaths {
		if _, err := os.Lstat(root); err != nil {
			logger.Warn("configured root path not accessible", "path", root, "error", err)
		}
	}
}

// ExcludeConfig converts the exclusion section into the walker's filter
// form.
func (c *Config) ExcludeConfig() exclude.Config {
	return exclude.Config{
		Directories: c.Exclusions.Directories,
		Extensions:  c.Exclusions.Extensions,
	}
}

// CheckpointInterval returns the checkpoint interval as a Duration.
func (c *Config) CheckpointInterval() time.Duration {
	return time.Duration(c.Performance.CheckpointIntervalSeconds) * time.Second
}

// DatabasePath resolves the database path to an absolute path.
func (c *Config) DatabasePath() string {
	if c.Database.Path == ":memory:" || filepath.IsAbs(c.Database.Path) {
		return c.Database.Path
	}
	abs, err := filepath.Abs(c.Database.Path)
	if err != nil {
		return c.Database.Path
	}
	return abs
}
