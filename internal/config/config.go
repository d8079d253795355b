// Package config loads and validates the huddlelight configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied to zero-valued optional fields.
const (
	DefaultPollIntervalSeconds  = 2
	DefaultProbeIntervalSeconds = 10
	DefaultRemoteTimeoutSeconds = 30
	DefaultWebhookPort          = 8686
)

// BridgeConfig identifies the lighting bridge and its credential.
type BridgeConfig struct {
	Address string `yaml:"address"` // host or host:port
	Token   string `yaml:"token"`
}

// Config is the full daemon configuration. The core consumes it as an opaque
// object; only this package reads the file.
type Config struct {
	Bridge BridgeConfig `yaml:"bridge"`

	// Lights is the set of light identifiers to drive. Order is irrelevant,
	// uniqueness is required. Empty means discovery mode: list available
	// lights on first bridge contact and exit.
	Lights []string `yaml:"lights"`

	PollIntervalSeconds  int `yaml:"poll_interval_seconds"`
	ProbeIntervalSeconds int `yaml:"probe_interval_seconds"`
	RemoteTimeoutSeconds int `yaml:"remote_timeout_seconds"`
	WebhookPort          int `yaml:"webhook_port"`
}

// DefaultPath returns the standard config file location.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "huddlelight", "config.yaml"), nil
}

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if c.ProbeIntervalSeconds == 0 {
		c.ProbeIntervalSeconds = DefaultProbeIntervalSeconds
	}
	if c.RemoteTimeoutSeconds == 0 {
		c.RemoteTimeoutSeconds = DefaultRemoteTimeoutSeconds
	}
	if c.WebhookPort == 0 {
		c.WebhookPort = DefaultWebhookPort
	}
}

// Validate checks the configuration for use by the daemon. Missing bridge
// coordinates are fatal; an empty light set is allowed (discovery mode).
func (c *Config) Validate() error {
	if c.Bridge.Address == "" {
		return fmt.Errorf("bridge.address is required")
	}
	if c.Bridge.Token == "" {
		return fmt.Errorf("bridge.token is required")
	}
	if c.PollIntervalSeconds < 1 {
		return fmt.Errorf("poll_interval_seconds must be at least 1, got %d", c.PollIntervalSeconds)
	}
	if c.ProbeIntervalSeconds < 1 {
		return fmt.Errorf("probe_interval_seconds must be at least 1, got %d", c.ProbeIntervalSeconds)
	}
	if c.RemoteTimeoutSeconds < 1 {
		return fmt.Errorf("remote_timeout_seconds must be at least 1, got %d", c.RemoteTimeoutSeconds)
	}
	if c.WebhookPort < 1 || c.WebhookPort > 65535 {
		return fmt.Errorf("webhook_port must be a valid port, got %d", c.WebhookPort)
	}

	seen := make(map[string]bool, len(c.Lights))
	for _, id := range c.Lights {
		if id == "" {
			return fmt.Errorf("light identifiers must not be empty")
		}
		if seen[id] {
			return fmt.Errorf("duplicate light identifier %q", id)
		}
		seen[id] = true
	}
	return nil
}

// PollInterval returns the local-signal polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// ProbeInterval returns the bridge reachability probe interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSeconds) * time.Second
}

// RemoteTimeout returns the remote presence liveness window.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.RemoteTimeoutSeconds) * time.Second
}

// WebhookAddr returns the listen address for the control-plane server. Bound
// to loopback; the browser agent runs on the same machine.
func (c *Config) WebhookAddr() string {
	return fmt.Sprintf("127.0.0.1:%d", c.WebhookPort)
}
