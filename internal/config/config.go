package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// The data port and output directory are fixed at build time; the device
// firmware is compiled against this port.
const (
	DataPort  = 8124
	OutputDir = "out"
)

// Wire encodings accepted on the data port
const (
	EncodingHex = "hex"
	EncodingRaw = "raw"
)

// Config represents the complete service configuration
type Config struct {
	Receiver ReceiverConfig `yaml:"receiver"`
	HTTP     HTTPConfig     `yaml:"http"`
	Logging  LoggingConfig  `yaml:"logging"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// ReceiverConfig contains TCP receiver settings
type ReceiverConfig struct {
	BindAddress    string `yaml:"bind_address"`
	ReadBufferSize int    `yaml:"read_buffer_size"`
	WireEncoding   string `yaml:"wire_encoding"`
	IdleTimeout    int    `yaml:"idle_timeout"` // seconds, 0 disables
}

// HTTPConfig contains HTTP ops API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// LedgerConfig selects where completed transfers are recorded
type LedgerConfig struct {
	Postgres PostgresConfig `yaml:"postgres"`
	PubSub   PubSubConfig   `yaml:"pubsub"`
	Timeout  int            `yaml:"timeout"` // seconds
}

// PostgresConfig contains the transfer table connection settings
type PostgresConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// PubSubConfig contains the completion topic settings
type PubSubConfig struct {
	Enabled   bool   `yaml:"enabled"`
	ProjectID string `yaml:"project_id"`
	TopicID   string `yaml:"topic_id"`
}

// Default returns the configuration used when no file is given: hex on the
// wire, no idle timeout, logs to stdout and no ledger or HTTP API.
func Default() *Config {
	return &Config{
		Receiver: ReceiverConfig{
			BindAddress:    "0.0.0.0",
			ReadBufferSize: 4096,
			WireEncoding:   EncodingHex,
		},
		HTTP: HTTPConfig{
			Port:    9124,
			Address: "127.0.0.1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Ledger: LedgerConfig{
			Timeout: 5,
		},
	}
}

// Load reads and parses the configuration file. Keys missing from the file
// keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs validation of every section
func (c *Config) Validate() error {
	if err := c.Receiver.Validate(); err != nil {
		return fmt.Errorf("receiver config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Ledger.Validate(); err != nil {
		return fmt.Errorf("ledger config: %w", err)
	}

	return nil
}

// Validate validates receiver configuration
func (r *ReceiverConfig) Validate() error {
	if r.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if r.ReadBufferSize < 64 {
		return fmt.Errorf("read_buffer_size must be at least 64 bytes, got %d", r.ReadBufferSize)
	}

	if r.WireEncoding != EncodingHex && r.WireEncoding != EncodingRaw {
		return fmt.Errorf("wire_encoding must be 'hex' or 'raw', got '%s'", r.WireEncoding)
	}

	if r.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %d", r.IdleTimeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Port == DataPort {
			return fmt.Errorf("http port %d collides with the data port", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// Validate validates ledger configuration
func (l *LedgerConfig) Validate() error {
	if l.Postgres.Enabled && l.Postgres.DSN == "" {
		return fmt.Errorf("postgres dsn cannot be empty when postgres is enabled")
	}

	if l.PubSub.Enabled {
		if l.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub project_id cannot be empty when pubsub is enabled")
		}
		if l.PubSub.TopicID == "" {
			return fmt.Errorf("pubsub topic_id cannot be empty when pubsub is enabled")
		}
	}

	if (l.Postgres.Enabled || l.PubSub.Enabled) && l.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", l.Timeout)
	}

	return nil
}

// GetIdleTimeoutDuration returns the idle timeout as a time.Duration; zero
// means connections never time out.
func (r *ReceiverConfig) GetIdleTimeoutDuration() time.Duration {
	return time.Duration(r.IdleTimeout) * time.Second
}

// GetTimeoutDuration returns the ledger write timeout as a time.Duration
func (l *LedgerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(l.Timeout) * time.Second
}
