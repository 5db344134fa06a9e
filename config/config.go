// Package config provides the bus's boot-time configuration: default
// resource pools, history retention, metrics/logging knobs, resolved
// through a three-layer priority: defaults, then environment
// variables, then functional options, each overriding the last.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/a2aforge/meshbus/agent"
	"github.com/a2aforge/meshbus/bus"
	"github.com/a2aforge/meshbus/core"
)

// BusConfig configures a Bus and its default agent resource pools.
type BusConfig struct {
	HistoryLimit int `json:"history_limit" yaml:"history_limit" env:"MESHBUS_HISTORY_LIMIT"`

	DefaultCPUPool     int `json:"default_cpu_pool" yaml:"default_cpu_pool" env:"MESHBUS_DEFAULT_CPU_POOL"`
	DefaultMemoryPool  int `json:"default_memory_pool" yaml:"default_memory_pool" env:"MESHBUS_DEFAULT_MEMORY_POOL"`
	DefaultNetworkPool int `json:"default_network_pool" yaml:"default_network_pool" env:"MESHBUS_DEFAULT_NETWORK_POOL"`

	MetricsSmoothingEnabled bool `json:"metrics_smoothing_enabled" yaml:"metrics_smoothing_enabled" env:"MESHBUS_METRICS_SMOOTHING"`

	LogLevel  string `json:"log_level" yaml:"log_level" env:"MESHBUS_LOG_LEVEL"`
	LogFormat string `json:"log_format" yaml:"log_format" env:"MESHBUS_LOG_FORMAT"`

	logger core.Logger `json:"-" yaml:"-"`
}

// DefaultBusConfig returns the configuration a Bus boots with absent
// any environment or option overrides: the standard per-agent pools
// (cpu=100, memory=1024, network=1000) and core.DefaultHistoryLimit.
func DefaultBusConfig() *BusConfig {
	return &BusConfig{
		HistoryLimit:            core.DefaultHistoryLimit,
		DefaultCPUPool:          core.DefaultCPUPool,
		DefaultMemoryPool:       core.DefaultMemoryPool,
		DefaultNetworkPool:      core.DefaultNetworkPool,
		MetricsSmoothingEnabled: true,
		LogLevel:                "INFO",
		LogFormat:               "text",
	}
}

// Option mutates a BusConfig at construction time, the
// highest-priority layer.
type Option func(*BusConfig)

// WithHistoryLimit overrides the bus's history ring-buffer size.
func WithHistoryLimit(n int) Option {
	return func(c *BusConfig) { c.HistoryLimit = n }
}

// WithDefaultPool overrides one of the three default resource pools.
func WithDefaultPool(resourceType core.ResourceType, amount int) Option {
	return func(c *BusConfig) {
		switch resourceType {
		case core.ResourceCPU:
			c.DefaultCPUPool = amount
		case core.ResourceMemory:
			c.DefaultMemoryPool = amount
		case core.ResourceNetwork:
			c.DefaultNetworkPool = amount
		}
	}
}

// WithLogger attaches a logger that BusSettings passes on to the bus.
// Options are applied after environment variables and file contents
// are read, so this logger does not receive diagnostics from that
// resolution.
func WithLogger(logger core.Logger) Option {
	return func(c *BusConfig) { c.logger = logger }
}

// New builds a BusConfig starting from DefaultBusConfig, overlaying
// environment variables, then applying opts in order.
func New(opts ...Option) *BusConfig {
	c := DefaultBusConfig()
	c.loadFromEnv()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BusConfig) loadFromEnv() {
	if v := os.Getenv("MESHBUS_HISTORY_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HistoryLimit = n
		} else if c.logger != nil {
			c.logger.Warn("invalid MESHBUS_HISTORY_LIMIT", map[string]interface{}{"value": v})
		}
	}
	if v := os.Getenv("MESHBUS_DEFAULT_CPU_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultCPUPool = n
		}
	}
	if v := os.Getenv("MESHBUS_DEFAULT_MEMORY_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultMemoryPool = n
		}
	}
	if v := os.Getenv("MESHBUS_DEFAULT_NETWORK_POOL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.DefaultNetworkPool = n
		}
	}
	if v := os.Getenv("MESHBUS_METRICS_SMOOTHING"); v != "" {
		c.MetricsSmoothingEnabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MESHBUS_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("MESHBUS_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
}

// BusSettings returns the bus construction settings this resolved
// configuration describes. Telemetry and an optional history store
// remain for the host to attach.
func (c *BusConfig) BusSettings() bus.Config {
	return bus.Config{HistoryLimit: c.HistoryLimit, Logger: c.logger}
}

// AgentOptions returns the agent construction options implied by the
// configured default resource pools.
func (c *BusConfig) AgentOptions() []agent.Option {
	return []agent.Option{
		agent.WithResourcePool(core.ResourceCPU, c.DefaultCPUPool),
		agent.WithResourcePool(core.ResourceMemory, c.DefaultMemoryPool),
		agent.WithResourcePool(core.ResourceNetwork, c.DefaultNetworkPool),
	}
}

// LoadFromFile loads a BusConfig from a .yaml/.yml or .json file.
// File settings override the defaults+environment layer but are
// themselves overridden by opts.
func LoadFromFile(path string, opts ...Option) (*BusConfig, error) {
	clean := filepath.Clean(path)
	ext := filepath.Ext(clean)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config: unsupported file extension %q", ext)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", clean, err)
	}

	c := DefaultBusConfig()
	c.loadFromEnv()

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse JSON %s: %w", clean, err)
		}
	default: // .yaml, .yml
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse YAML %s: %w", clean, err)
		}
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}
