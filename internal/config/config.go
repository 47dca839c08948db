// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	DatabasePath       string `env:"DATABASE_PATH" envDefault:"serialarr.db"`
	LibraryPath        string `env:"LIBRARY_PATH" envDefault:"library"`
	LegacyDownloadPath string `env:"LEGACY_DOWNLOAD_PATH" envDefault:""`
	LogLevel           string `env:"LOG_LEVEL" envDefault:"info"`

	// Scheduler intervals
	UpdateIntervalHours   int `env:"UPDATE_INTERVAL_HOURS" envDefault:"1"`
	DrainIntervalSeconds  int `env:"DRAIN_INTERVAL_SECONDS" envDefault:"30"`
	MetadataBackfillHours int `env:"METADATA_BACKFILL_HOURS" envDefault:"12"`
	HistoryRetentionDays  int `env:"HISTORY_RETENTION_DAYS" envDefault:"60"`

	// Polite fetch settings shared by source implementations
	FetchDelaySeconds   float64 `env:"FETCH_DELAY_SECONDS" envDefault:"2"`
	FetchTimeoutSeconds int     `env:"FETCH_TIMEOUT_SECONDS" envDefault:"30"`
	UserAgent           string  `env:"USER_AGENT" envDefault:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"`

	// Library naming templates
	WorkFolderFormat   string `env:"WORK_FOLDER_FORMAT" envDefault:"{Title} ({Id})"`
	EpisodeFileFormat  string `env:"EPISODE_FILE_FORMAT" envDefault:"{Index} - {Title}"`
	VolumeFolderFormat string `env:"VOLUME_FOLDER_FORMAT" envDefault:"Volume {Volume}"`
	CompiledNameFormat string `env:"COMPILED_NAME_FORMAT" envDefault:"{Title} - {Suffix}"`

	// Email channel credentials
	SMTPHost     string `env:"SMTP_HOST" envDefault:""`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER" envDefault:""`
	SMTPPassword string `env:"SMTP_PASSWORD" envDefault:""`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:""`
}

// Load loads configuration from environment variables and .env file
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if file doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	logLevel := strings.ToLower(c.LogLevel)
	isValidLevel := false
	for _, level := range validLogLevels {
		if logLevel == level {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		return fmt.Errorf("invalid log level %q, must be one of: %v", c.LogLevel, validLogLevels)
	}

	if c.LibraryPath == "" {
		return fmt.Errorf("LIBRARY_PATH cannot be empty")
	}
	if c.UpdateIntervalHours <= 0 {
		return fmt.Errorf("UPDATE_INTERVAL_HOURS must be positive, got %d", c.UpdateIntervalHours)
	}
	if c.DrainIntervalSeconds <= 0 {
		return fmt.Errorf("DRAIN_INTERVAL_SECONDS must be positive, got %d", c.DrainIntervalSeconds)
	}
	if c.MetadataBackfillHours <= 0 {
		return fmt.Errorf("METADATA_BACKFILL_HOURS must be positive, got %d", c.MetadataBackfillHours)
	}
	if c.FetchDelaySeconds < 0 {
		return fmt.Errorf("FETCH_DELAY_SECONDS cannot be negative, got %f", c.FetchDelaySeconds)
	}

	return nil
}

// UpdateInterval returns the update sweep interval as a duration
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalHours) * time.Hour
}

// DrainInterval returns the download drain interval as a duration
func (c *Config) DrainInterval() time.Duration {
	return time.Duration(c.DrainIntervalSeconds) * time.Second
}

// MetadataBackfillInterval returns the metadata backfill interval as a duration
func (c *Config) MetadataBackfillInterval() time.Duration {
	return time.Duration(c.MetadataBackfillHours) * time.Hour
}

// HistoryRetention returns the download history retention as a duration
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.HistoryRetentionDays) * 24 * time.Hour
}
