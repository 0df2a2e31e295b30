package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// API configuration for the remote document store.
	API APIConfig `mapstructure:"api"`

	// Storage paths for local databases.
	Storage StorageConfig `mapstructure:"storage"`

	// Sync behavior
	Sync SyncConfig `mapstructure:"sync"`

	// Network connectivity monitoring
	Network NetworkConfig `mapstructure:"network"`

	// Logging
	Log LogConfig `mapstructure:"log"`
}

// APIConfig for server communication.
type APIConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
	UserAgent  string        `mapstructure:"user_agent"`

	// Identity token obtained by the (external) auth flow.
	Token string `mapstructure:"token"`
}

// StorageConfig for local database paths.
type StorageConfig struct {
	DataDir         string `mapstructure:"data_dir"`         // Base directory for all data
	RecordsFile     string `mapstructure:"records_file"`     // Record store database
	CheckpointsFile string `mapstructure:"checkpoints_file"` // Checkpoint database
}

// SyncConfig for synchronization behavior.
type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval"`       // Periodic cycle cadence
	RetryAttempts int           `mapstructure:"retry_attempts"` // Job retries on hard failure
	RetryDelay    time.Duration `mapstructure:"retry_delay"`    // Initial retry delay
}

// NetworkConfig for the connectivity monitor.
type NetworkConfig struct {
	ProbeURL      string        `mapstructure:"probe_url"`      // Endpoint used to validate internet access
	ProbeInterval time.Duration `mapstructure:"probe_interval"` // How often to re-check
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`  // Per-probe timeout
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
	File   string `mapstructure:"file"`   // Log file path (empty = stdout)
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	dataDir := ".gastosync"

	return &Config{
		API: APIConfig{
			BaseURL:    "https://api.gastosync.app",
			Timeout:    30 * time.Second,
			MaxRetries: 3,
			UserAgent:  "gastosync",
		},
		Storage: StorageConfig{
			DataDir:         dataDir,
			RecordsFile:     filepath.Join(dataDir, "records.db"),
			CheckpointsFile: filepath.Join(dataDir, "checkpoints.db"),
		},
		Sync: SyncConfig{
			Interval:      time.Hour,
			RetryAttempts: 3,
			RetryDelay:    time.Second,
		},
		Network: NetworkConfig{
			ProbeURL:      "https://api.gastosync.app/healthz",
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  5 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}

	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be positive")
	}

	if c.Sync.Interval <= 0 {
		return errors.New("sync.interval must be positive")
	}

	if c.Network.ProbeInterval <= 0 {
		return errors.New("network.probe_interval must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		filepath.Dir(c.Storage.RecordsFile),
		filepath.Dir(c.Storage.CheckpointsFile),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
