// Package config loads registry configuration from defaults, an optional
// YAML file and PORTREG_* environment variables, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Registry  RegistryConfig  `yaml:"registry" envconfig:"REGISTRY"`
	RateLimit RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfig contains HTTP server configuration.
// Port is the bootstrap port: the one fixed port in the whole system.
type ServerConfig struct {
	Host string `yaml:"host" envconfig:"HOST"`
	Port int    `yaml:"port" envconfig:"PORT"`
}

// Address returns the server address in host:port format
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RegistryConfig contains assignment state and allocation configuration
type RegistryConfig struct {
	// StatePath is the location of the persisted assignment file
	StatePath string `yaml:"state_path" envconfig:"STATE_PATH"`

	// RangeStart and RangeEnd bound the managed port range (inclusive)
	RangeStart int `yaml:"range_start" envconfig:"RANGE_START"`
	RangeEnd   int `yaml:"range_end" envconfig:"RANGE_END"`

	// ProbeTimeout bounds a single OS-level availability probe
	ProbeTimeout time.Duration `yaml:"probe_timeout" envconfig:"PROBE_TIMEOUT"`
}

// RateLimitConfig contains request rate limiting configuration
type RateLimitConfig struct {
	// Enabled toggles the limiter; disabled by default since the
	// registry normally serves only local processes
	Enabled bool `yaml:"enabled" envconfig:"ENABLED"`

	// RPM is the allowed requests per minute per client
	RPM int `yaml:"rpm" envconfig:"RPM"`

	// BurstMultiplier scales the short-term burst allowance
	BurstMultiplier int `yaml:"burst_multiplier" envconfig:"BURST_MULTIPLIER"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// Missing file is fine, defaults plus env vars apply
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if err := envconfig.Process("PORTREG", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 4444,
		},
		Registry: RegistryConfig{
			StatePath:    "registry.json",
			RangeStart:   8002,
			RangeEnd:     9999,
			ProbeTimeout: 300 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			Enabled:         false,
			RPM:             600,
			BurstMultiplier: 2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Registry.StatePath == "" {
		return fmt.Errorf("registry state_path is required")
	}
	if c.Registry.RangeStart < 1 || c.Registry.RangeEnd > 65535 {
		return fmt.Errorf("managed range %d-%d outside valid ports", c.Registry.RangeStart, c.Registry.RangeEnd)
	}
	if c.Registry.RangeStart > c.Registry.RangeEnd {
		return fmt.Errorf("managed range start %d after end %d", c.Registry.RangeStart, c.Registry.RangeEnd)
	}
	if c.Registry.RangeStart == c.Registry.RangeEnd && c.Registry.RangeStart == c.Server.Port {
		return fmt.Errorf("managed range contains only the bootstrap port %d", c.Server.Port)
	}
	if c.RateLimit.Enabled && c.RateLimit.RPM < 1 {
		return fmt.Errorf("rate limit rpm must be positive")
	}
	return nil
}
