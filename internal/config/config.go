// Package config loads the dispatch layer configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/dispatch_layer/internal/dispatch"
)

// Config is the full daemon configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Chain      ChainConfig      `yaml:"chain"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Refresher  RefresherConfig  `yaml:"refresher"`
	Server     ServerConfig     `yaml:"server"`
}

// LoggingConfig mirrors pkg/logger's construction options.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ChainConfig names the RPC endpoints.
type ChainConfig struct {
	Primary             string   `yaml:"primary"`
	Fallbacks           []string `yaml:"fallbacks"`
	TimeoutSeconds      int      `yaml:"timeout_seconds"`
	ProbeTimeoutSeconds int      `yaml:"probe_timeout_seconds"`
}

// DispatcherConfig tunes the rate-limited executor.
type DispatcherConfig struct {
	Capacity      float64 `yaml:"capacity"`
	RefillRate    float64 `yaml:"refill_rate"`
	MinRefillRate float64 `yaml:"min_refill_rate"`
	MaxRefillRate float64 `yaml:"max_refill_rate"`
	MaxQueueSize  int     `yaml:"max_queue_size"`
	MaxRetries    int     `yaml:"max_retries"`
	BaseDelayMS   int     `yaml:"base_delay_ms"`
	MaxDelayMS    int     `yaml:"max_delay_ms"`
}

// RefresherConfig tunes the chain-state refresher.
type RefresherConfig struct {
	IntervalSeconds int      `yaml:"interval_seconds"`
	Accounts        []string `yaml:"accounts"`
}

// ServerConfig tunes the HTTP status server.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	RateLimitRPS   int    `yaml:"rate_limit_rps"`
	RateLimitBurst int    `yaml:"rate_limit_burst"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		Chain: ChainConfig{
			Primary:             "http://localhost:10332",
			TimeoutSeconds:      30,
			ProbeTimeoutSeconds: 10,
		},
		Dispatcher: DispatcherConfig{
			Capacity:      10,
			RefillRate:    5,
			MinRefillRate: 0.5,
			MaxRefillRate: 20,
			MaxQueueSize:  100,
			MaxRetries:    3,
			BaseDelayMS:   1000,
			MaxDelayMS:    32000,
		},
		Refresher: RefresherConfig{IntervalSeconds: 15},
		Server:    ServerConfig{Addr: ":8080", RateLimitRPS: 20, RateLimitBurst: 40},
	}
}

// Load reads and validates configuration from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path or falls back to defaults if the file is missing.
func LoadOrDefault(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects configurations the dispatcher cannot run with.
func (c *Config) Validate() error {
	if c.Chain.Primary == "" {
		return fmt.Errorf("chain: primary endpoint is required")
	}
	d := c.Dispatcher
	if d.Capacity < 1 {
		return fmt.Errorf("dispatcher: capacity must be >= 1")
	}
	if d.MinRefillRate <= 0 {
		return fmt.Errorf("dispatcher: min_refill_rate must be > 0")
	}
	if d.MaxRefillRate < d.MinRefillRate {
		return fmt.Errorf("dispatcher: max_refill_rate must be >= min_refill_rate")
	}
	if d.RefillRate < d.MinRefillRate || d.RefillRate > d.MaxRefillRate {
		return fmt.Errorf("dispatcher: refill_rate must be within [min_refill_rate, max_refill_rate]")
	}
	if d.MaxQueueSize < 1 {
		return fmt.Errorf("dispatcher: max_queue_size must be >= 1")
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("dispatcher: max_retries must be >= 0")
	}
	if d.BaseDelayMS < 1 {
		return fmt.Errorf("dispatcher: base_delay_ms must be >= 1")
	}
	if c.Refresher.IntervalSeconds < 1 {
		return fmt.Errorf("refresher: interval_seconds must be >= 1")
	}
	return nil
}

// DispatchConfig converts the dispatcher section into executor tuning.
func (c *Config) DispatchConfig() dispatch.Config {
	return dispatch.Config{
		Bucket: dispatch.BucketConfig{
			Capacity:      c.Dispatcher.Capacity,
			RefillRate:    c.Dispatcher.RefillRate,
			MinRefillRate: c.Dispatcher.MinRefillRate,
			MaxRefillRate: c.Dispatcher.MaxRefillRate,
		},
		Backoff: dispatch.Backoff{
			Base: time.Duration(c.Dispatcher.BaseDelayMS) * time.Millisecond,
			Max:  time.Duration(c.Dispatcher.MaxDelayMS) * time.Millisecond,
		},
		MaxQueueSize: c.Dispatcher.MaxQueueSize,
		MaxRetries:   c.Dispatcher.MaxRetries,
	}
}

// ChainTimeout returns the RPC call timeout.
func (c *Config) ChainTimeout() time.Duration {
	return time.Duration(c.Chain.TimeoutSeconds) * time.Second
}

// ProbeTimeout returns the failover health-check timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Chain.ProbeTimeoutSeconds) * time.Second
}

// RefreshInterval returns the refresher tick interval.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Refresher.IntervalSeconds) * time.Second
}
