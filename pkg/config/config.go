// Package config provides the unified configuration system for poolsight.
// It defines a single Config structure covering the lifecycle tracking
// engine, metric export, and logging, organized into logical sections:
//
//   - Tracking: activity log capacity, duration tracking, pool sizing
//   - Export: listen address and metric namespace
//   - Logging: level, encoding, development mode
//
// Invalid configuration is rejected at construction time only; once a
// tracker is built, no configuration value can fail a steady-state
// operation.
//
// Example usage:
//
//	cfg := config.DefaultConfig()
//	cfg.Tracking.ActivityLogCapacity = 1000
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"time"

	"github.com/poolsight/poolsight/pkg/pperrors"
)

// DefaultActivityLogCapacity is the per-type activity ring capacity used
// when none is configured.
const DefaultActivityLogCapacity = 500

// DefaultRentalKeyCacheSize bounds the rental correlator's dedup cache.
const DefaultRentalKeyCacheSize = 4096

// DefaultMaxPoolSize is assumed for pooled types with no configured
// capacity, mirroring the host pool's default.
const DefaultMaxPoolSize = 1024

// Config is the single unified configuration structure for a poolsight
// deployment.
type Config struct {
	// Tracking controls the lifecycle tracking engine
	Tracking TrackingConfig `yaml:"tracking" json:"tracking"`

	// Export controls the pull-based metric export surface
	Export ExportConfig `yaml:"export" json:"export"`

	// Logging controls structured log output
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TrackingConfig contains the lifecycle engine settings.
type TrackingConfig struct {
	// ActivityLogCapacity is the per-type activity ring size; 0 disables
	// activity logging entirely
	ActivityLogCapacity int `yaml:"activity_log_capacity" json:"activity_log_capacity"`
	// EnableDurationTracking folds rental and lifetime durations into
	// min/avg/max accounting and activity records
	EnableDurationTracking bool `yaml:"enable_duration_tracking" json:"enable_duration_tracking"`
	// RentalKeyCacheSize bounds the correlator's (instance, lease) dedup set
	RentalKeyCacheSize int `yaml:"rental_key_cache_size" json:"rental_key_cache_size"`
	// LeakThreshold is accepted and surfaced but reserved; it is not yet
	// evaluated against elapsed rental time
	LeakThreshold time.Duration `yaml:"leak_threshold" json:"leak_threshold"`
	// DefaultMaxPoolSize applies to pooled types absent from MaxPoolSizes
	DefaultMaxPoolSize int `yaml:"default_max_pool_size" json:"default_max_pool_size"`
	// MaxPoolSizes maps resource type names to their configured pool capacity
	MaxPoolSizes map[string]int `yaml:"max_pool_sizes" json:"max_pool_sizes"`
}

// ExportConfig contains the metric export settings.
type ExportConfig struct {
	// ListenAddr is the HTTP listen address for /metrics and /debug/pools
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`
	// Namespace prefixes all exported prometheus metric names
	Namespace string `yaml:"namespace" json:"namespace"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level"`
	// Encoding selects the log output format (json or console)
	Encoding string `yaml:"encoding" json:"encoding"`
	// Development enables human-friendly output and error stacktraces
	Development bool `yaml:"development" json:"development"`
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Tracking: TrackingConfig{
			ActivityLogCapacity:    DefaultActivityLogCapacity,
			EnableDurationTracking: true,
			RentalKeyCacheSize:     DefaultRentalKeyCacheSize,
			LeakThreshold:          5 * time.Minute,
			DefaultMaxPoolSize:     DefaultMaxPoolSize,
			MaxPoolSizes:           map[string]int{},
		},
		Export: ExportConfig{
			ListenAddr: ":9090",
			Namespace:  "poolsight",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
	}
}

// Validate checks the configuration for invalid values. It is the only
// place configuration can fail; steady-state event processing never
// revisits these checks.
func (c *Config) Validate() error {
	if c.Tracking.ActivityLogCapacity < 0 {
		return pperrors.New(pperrors.ErrorTypeConfig, "activity log capacity cannot be negative").
			WithDetail("activity_log_capacity", c.Tracking.ActivityLogCapacity)
	}
	if c.Tracking.RentalKeyCacheSize <= 0 {
		return pperrors.New(pperrors.ErrorTypeConfig, "rental key cache size must be positive").
			WithDetail("rental_key_cache_size", c.Tracking.RentalKeyCacheSize)
	}
	if c.Tracking.LeakThreshold < 0 {
		return pperrors.New(pperrors.ErrorTypeConfig, "leak threshold cannot be negative").
			WithDetail("leak_threshold", c.Tracking.LeakThreshold.String())
	}
	if c.Tracking.DefaultMaxPoolSize <= 0 {
		return pperrors.New(pperrors.ErrorTypeConfig, "default max pool size must be positive").
			WithDetail("default_max_pool_size", c.Tracking.DefaultMaxPoolSize)
	}
	for name, size := range c.Tracking.MaxPoolSizes {
		if size <= 0 {
			return pperrors.New(pperrors.ErrorTypeConfig, "max pool size must be positive").
				WithDetail("type", name).
				WithDetail("max_pool_size", size)
		}
	}
	if c.Export.ListenAddr == "" {
		return pperrors.New(pperrors.ErrorTypeConfig, "export listen address cannot be empty")
	}
	if c.Export.Namespace == "" {
		return pperrors.New(pperrors.ErrorTypeConfig, "export namespace cannot be empty")
	}
	if c.Logging.Level == "" {
		return pperrors.New(pperrors.ErrorTypeConfig, "log level cannot be empty")
	}
	return nil
}

// MaxPoolSize returns the configured capacity for a resource type,
// falling back to the default when the type has no explicit entry.
func (c *TrackingConfig) MaxPoolSize(typeName string) int {
	if size, ok := c.MaxPoolSizes[typeName]; ok {
		return size
	}
	return c.DefaultMaxPoolSize
}
