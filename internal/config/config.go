// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file. ":memory:" keeps everything in process.
	DBPath string `koanf:"db_path"`

	// QueueSize bounds the in-memory routing trigger queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of routing workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the trigger idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`

	// NotifyQueueSize and NotifyWorkers size the notification dispatcher.
	NotifyQueueSize int `koanf:"notify_queue_size"`
	NotifyWorkers   int `koanf:"notify_workers"`

	// SweepIntervalSeconds is the period of the background expiry sweep.
	SweepIntervalSeconds int `koanf:"sweep_interval_seconds"`

	// SweepBatchSize caps how many expired assignments one sweep handles.
	SweepBatchSize int `koanf:"sweep_batch_size"`

	// SweepConcurrency bounds parallel reroutes within a sweep.
	SweepConcurrency int `koanf:"sweep_concurrency"`

	// ParamsCacheTTLSeconds is how long guardian parameters are cached.
	ParamsCacheTTLSeconds int `koanf:"params_cache_ttl_seconds"`

	// AppBaseURL prefixes the broker panel link placed in notices.
	AppBaseURL string `koanf:"app_base_url"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		DBPath:                "leadrouter.db",
		QueueSize:             10_000,
		WorkerCount:           runtime.NumCPU() * 2,
		DedupeSize:            50_000,
		NotifyQueueSize:       10_000,
		NotifyWorkers:         4,
		SweepIntervalSeconds:  60,
		SweepBatchSize:        50,
		SweepConcurrency:      4,
		ParamsCacheTTLSeconds: 300,
		AppBaseURL:            "http://localhost:3000",
	}
}

// SweepInterval returns the sweep period as a duration.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

// ParamsCacheTTL returns the parameter cache TTL as a duration.
func (c *Config) ParamsCacheTTL() time.Duration {
	return time.Duration(c.ParamsCacheTTLSeconds) * time.Second
}

// Validate reports the first invalid field wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DBPath == "":
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	case c.QueueSize <= 0:
		return fmt.Errorf("%w: queue_size must be positive, got %d", ErrInvalidConfig, c.QueueSize)
	case c.WorkerCount <= 0:
		return fmt.Errorf("%w: worker_count must be positive, got %d", ErrInvalidConfig, c.WorkerCount)
	case c.DedupeSize <= 0:
		return fmt.Errorf("%w: dedupe_size must be positive, got %d", ErrInvalidConfig, c.DedupeSize)
	case c.NotifyQueueSize <= 0:
		return fmt.Errorf("%w: notify_queue_size must be positive, got %d", ErrInvalidConfig, c.NotifyQueueSize)
	case c.NotifyWorkers <= 0:
		return fmt.Errorf("%w: notify_workers must be positive, got %d", ErrInvalidConfig, c.NotifyWorkers)
	case c.SweepIntervalSeconds <= 0:
		return fmt.Errorf("%w: sweep_interval_seconds must be positive, got %d", ErrInvalidConfig, c.SweepIntervalSeconds)
	case c.SweepBatchSize <= 0:
		return fmt.Errorf("%w: sweep_batch_size must be positive, got %d", ErrInvalidConfig, c.SweepBatchSize)
	case c.SweepConcurrency <= 0:
		return fmt.Errorf("%w: sweep_concurrency must be positive, got %d", ErrInvalidConfig, c.SweepConcurrency)
	case c.ParamsCacheTTLSeconds < 0:
		return fmt.Errorf("%w: params_cache_ttl_seconds must not be negative, got %d", ErrInvalidConfig, c.ParamsCacheTTLSeconds)
	}
	return nil
}
