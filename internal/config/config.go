package config

import (
	"fmt"
	"os"
	"time"

	"github.com/dyluth/brock/internal/instance"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Validate when a field is omitted.
const (
	DefaultFileName    = "brock.yml"
	DefaultRedisURL    = "redis://localhost:6379"
	DefaultProofWindow = 5 * time.Minute
	DefaultServerAddr  = ":9090"
	DefaultLogLevel    = "info"
	DefaultKeyFile     = "brock.key"
)

// BrockConfig represents the top-level brock.yml configuration
type BrockConfig struct {
	Version     string        `yaml:"version"`
	Instance    string        `yaml:"instance"`
	RedisURL    string        `yaml:"redis_url,omitempty"`
	ProofWindow time.Duration `yaml:"proof_window,omitempty"` // Accepted drift for signed proofs
	KeyFile     string        `yaml:"key_file,omitempty"`     // Hex Ed25519 seed used by the CLI
	Server      *ServerConfig `yaml:"server,omitempty"`
	Log         *LogConfig    `yaml:"log,omitempty"`
}

// ServerConfig specifies the daemon's HTTP listener
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"` // Serves /healthz and /metrics
}

// LogConfig specifies structured logging
type LogConfig struct {
	Level       string `yaml:"level,omitempty"`       // debug, info, warn or error
	Development bool   `yaml:"development,omitempty"` // Human-readable console output
}

// Validate performs strict validation on the configuration and fills in
// defaults for omitted sections.
func (c *BrockConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: instance
	if c.Instance == "" {
		return fmt.Errorf("instance is required")
	}
	if err := instance.ValidateName(c.Instance); err != nil {
		return err
	}

	if c.RedisURL == "" {
		c.RedisURL = DefaultRedisURL
	}
	if _, err := redis.ParseURL(c.RedisURL); err != nil {
		return fmt.Errorf("invalid redis_url: %w", err)
	}

	if c.ProofWindow == 0 {
		c.ProofWindow = DefaultProofWindow
	} else if c.ProofWindow < 0 {
		return fmt.Errorf("proof_window must be positive, got %s", c.ProofWindow)
	}

	if c.KeyFile == "" {
		c.KeyFile = DefaultKeyFile
	}

	if c.Server == nil {
		c.Server = &ServerConfig{}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultServerAddr
	}

	if c.Log == nil {
		c.Log = &LogConfig{}
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("invalid log.level: %s (must be 'debug', 'info', 'warn' or 'error')", c.Log.Level)
	}

	return nil
}

// RedisOptions parses the validated redis_url.
func (c *BrockConfig) RedisOptions() (*redis.Options, error) {
	return redis.ParseURL(c.RedisURL)
}

// LogLevel returns the validated log level.
func (c *BrockConfig) LogLevel() zapcore.Level {
	level, err := zapcore.ParseLevel(c.Log.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

// Default returns a validated configuration for instance.
func Default(instance string) *BrockConfig {
	c := &BrockConfig{Version: "1.0", Instance: instance}
	_ = c.Validate()
	return c
}

// Parse validates brock.yml content.
func Parse(data []byte) (*BrockConfig, error) {
	var config BrockConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Load reads and validates brock.yml from the specified path
func Load(path string) (*BrockConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Write saves the configuration to path. Existing files are not overwritten.
func Write(path string, c *BrockConfig) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
