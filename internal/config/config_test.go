package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected default config to be valid, got: %v", err)
	}

	if cfg.Receiver.WireEncoding != EncodingHex {
		t.Errorf("Expected default wire encoding %q, got %q", EncodingHex, cfg.Receiver.WireEncoding)
	}

	if cfg.Receiver.GetIdleTimeoutDuration() != 0 {
		t.Errorf("Expected no idle timeout by default, got %v", cfg.Receiver.GetIdleTimeoutDuration())
	}

	if cfg.HTTP.Enabled {
		t.Error("Expected HTTP API to be disabled by default")
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:     "empty bind address",
			mutate:   func(c *Config) { c.Receiver.BindAddress = "" },
			errorMsg: "bind_address cannot be empty",
		},
		{
			name:     "unknown wire encoding",
			mutate:   func(c *Config) { c.Receiver.WireEncoding = "base64" },
			errorMsg: "wire_encoding must be 'hex' or 'raw'",
		},
		{
			name:     "read buffer too small",
			mutate:   func(c *Config) { c.Receiver.ReadBufferSize = 8 },
			errorMsg: "read_buffer_size must be at least 64",
		},
		{
			name:     "negative idle timeout",
			mutate:   func(c *Config) { c.Receiver.IdleTimeout = -1 },
			errorMsg: "idle_timeout cannot be negative",
		},
		{
			name: "http port collides with data port",
			mutate: func(c *Config) {
				c.HTTP.Enabled = true
				c.HTTP.Port = DataPort
			},
			errorMsg: "collides with the data port",
		},
		{
			name: "disabled http is not validated",
			mutate: func(c *Config) {
				c.HTTP.Enabled = false
				c.HTTP.Port = 0
			},
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "trace" },
			errorMsg: "level must be one of",
		},
		{
			name:     "postgres without dsn",
			mutate:   func(c *Config) { c.Ledger.Postgres.Enabled = true },
			errorMsg: "postgres dsn cannot be empty",
		},
		{
			name: "pubsub without topic",
			mutate: func(c *Config) {
				c.Ledger.PubSub.Enabled = true
				c.Ledger.PubSub.ProjectID = "camera"
			},
			errorMsg: "topic_id cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				}
				return
			}
			if err == nil {
				t.Errorf("Expected error containing %q but got none", tt.errorMsg)
			} else if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
receiver:
  bind_address: "0.0.0.0"
  read_buffer_size: 8192
  wire_encoding: "raw"
  idle_timeout: 30
http:
  enabled: true
  address: "127.0.0.1"
  port: 9124
logging:
  level: "debug"
  format: "json"
  output: "stderr"
`,
		},
		{
			name: "partial file keeps defaults",
			configYAML: `
logging:
  level: "warn"
`,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
receiver:
  read_buffer_size: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "explicitly empty bind address",
			configYAML: `
receiver:
  bind_address: ""
`,
			expectError: true,
			errorMsg:    "bind_address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			if err := os.WriteFile(configPath, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error but got: %v", err)
			}
			if config == nil {
				t.Fatal("Expected config to be loaded but got nil")
			}
		})
	}
}

func TestConfigLoadMergesDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("receiver:\n  wire_encoding: raw\n"), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Receiver.WireEncoding != EncodingRaw {
		t.Errorf("Expected wire encoding raw, got %q", cfg.Receiver.WireEncoding)
	}
	if cfg.Receiver.BindAddress != "0.0.0.0" {
		t.Errorf("Expected default bind address to survive, got %q", cfg.Receiver.BindAddress)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default log output to survive, got %q", cfg.Logging.Output)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatal("Expected error for nonexistent file but got none")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	receiver := ReceiverConfig{IdleTimeout: 45}
	if receiver.GetIdleTimeoutDuration() != 45*time.Second {
		t.Errorf("Expected 45 seconds, got %v", receiver.GetIdleTimeoutDuration())
	}

	ledger := LedgerConfig{Timeout: 5}
	if ledger.GetTimeoutDuration() != 5*time.Second {
		t.Errorf("Expected 5 seconds, got %v", ledger.GetTimeoutDuration())
	}
}
