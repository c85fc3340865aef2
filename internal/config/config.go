// Package config defines service configuration and its loading chain.
package config

import (
	"fmt"
	"time"
)

// Data source kinds.
const (
	SourceFile = "file"
	SourceHTTP = "http"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DataSource selects where ranking lists come from: "file" or "http".
	DataSource string `koanf:"data_source"`

	// DataFile is the JSON rankings file read by the file source.
	DataFile string `koanf:"data_file"`

	// DataURL is the base URL of the rankings backend for the http source.
	DataURL string `koanf:"data_url"`

	// FetchTimeoutMS bounds a single fetch.
	FetchTimeoutMS int `koanf:"fetch_timeout_ms"`

	// WatchDataFile reloads every cohort when DataFile changes on disk.
	WatchDataFile bool `koanf:"watch_data_file"`

	// Cohorts lists the cohort keys to load, e.g. "u12-boys".
	Cohorts []string `koanf:"cohorts"`

	MinQueryLength int `koanf:"min_query_length"`
	ResultCap      int `koanf:"result_cap"`

	// RowHeight, Overscan and ViewportHeight parametrize the ranking window.
	RowHeight      float64 `koanf:"row_height"`
	Overscan       int     `koanf:"overscan"`
	ViewportHeight float64 `koanf:"viewport_height"`

	// MaxWindowRows caps rows materialized by a single API response.
	MaxWindowRows int `koanf:"max_window_rows"`

	// BlurGraceMS delays closing a search dropdown after focus leaves it.
	BlurGraceMS int `koanf:"blur_grace_ms"`

	SchedulerWorkers   int `koanf:"scheduler_workers"`
	SchedulerQueueSize int `koanf:"scheduler_queue_size"`

	// FlagsDB is the SQLite path for persistent flags; empty keeps them in memory.
	FlagsDB      string `koanf:"flags_db"`
	FlagsMaxSize int    `koanf:"flags_max_size"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		Addr:               ":9080",
		DataSource:         SourceFile,
		DataFile:           "rankings.json",
		FetchTimeoutMS:     10_000,
		WatchDataFile:      true,
		Cohorts:            []string{"u12-boys", "u12-girls"},
		MinQueryLength:     2,
		ResultCap:          10,
		RowHeight:          60,
		Overscan:           5,
		ViewportHeight:     600,
		MaxWindowRows:      200,
		BlurGraceMS:        150,
		SchedulerWorkers:   1,
		SchedulerQueueSize: 1024,
		FlagsMaxSize:       10_000,
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DataSource != SourceFile && c.DataSource != SourceHTTP:
		return fmt.Errorf("%w: data_source %q must be %q or %q", ErrInvalidConfig, c.DataSource, SourceFile, SourceHTTP)
	case c.DataSource == SourceHTTP && c.DataURL == "":
		return fmt.Errorf("%w: data_url is required for the http source", ErrInvalidConfig)
	case c.MinQueryLength < 1:
		return fmt.Errorf("%w: min_query_length must be at least 1", ErrInvalidConfig)
	case c.ResultCap < 1:
		return fmt.Errorf("%w: result_cap must be at least 1", ErrInvalidConfig)
	case c.RowHeight <= 0:
		return fmt.Errorf("%w: row_height must be positive", ErrInvalidConfig)
	case c.Overscan < 0:
		return fmt.Errorf("%w: overscan must not be negative", ErrInvalidConfig)
	case c.MaxWindowRows < 1:
		return fmt.Errorf("%w: max_window_rows must be at least 1", ErrInvalidConfig)
	case c.SchedulerWorkers < 1:
		return fmt.Errorf("%w: scheduler_workers must be at least 1", ErrInvalidConfig)
	case c.SchedulerQueueSize < 1:
		return fmt.Errorf("%w: scheduler_queue_size must be at least 1", ErrInvalidConfig)
	case len(c.Cohorts) == 0:
		return fmt.Errorf("%w: at least one cohort is required", ErrInvalidConfig)
	}
	return nil
}

// FetchTimeout returns FetchTimeoutMS as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMS) * time.Millisecond
}

// BlurGrace returns BlurGraceMS as a duration.
func (c *Config) BlurGrace() time.Duration {
	return time.Duration(c.BlurGraceMS) * time.Millisecond
}
