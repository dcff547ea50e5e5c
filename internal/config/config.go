// Package config loads the runtime configuration for the driver process.
// Config lives in minddrive.json5 at the workspace root; JSON5 so operators
// can comment their config. Environment variables override file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Defaults.
const (
	DefaultConfigFile   = "minddrive.json5"
	DefaultStoreBackend = "file"
	DefaultGatewayHost  = "127.0.0.1"
	DefaultGatewayPort  = 18788
	DefaultPollInterval = 100 * time.Millisecond
	DefaultErrorBackoff = time.Second
)

// Config is the process-level runtime configuration.
type Config struct {
	// Workspace is the root directory holding .minds/ and the store.
	Workspace string `json:"workspace"`

	Store     StoreConfig     `json:"store"`
	Gateway   GatewayConfig   `json:"gateway"`
	Driver    DriverConfig    `json:"driver"`
	Telemetry TelemetryConfig `json:"telemetry"`

	// Heartbeats schedule periodic drives of root dialogs.
	Heartbeats []HeartbeatConfig `json:"heartbeats"`
}

// StoreConfig selects and parameterizes the persistence backend.
type StoreConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `json:"backend"`
	// Path overrides the backend's location under the workspace.
	Path string `json:"path"`
}

// GatewayConfig configures the websocket event gateway.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	// Disabled turns the gateway off entirely.
	Disabled bool `json:"disabled"`
}

// DriverConfig tunes the backend driver loop.
type DriverConfig struct {
	// PollInterval is the idle sleep between needs-drive scans.
	PollInterval time.Duration `json:"-"`
	// ErrorBackoff is the sleep after a failed scan.
	ErrorBackoff time.Duration `json:"-"`

	PollIntervalMS int `json:"poll_interval_ms"`
	ErrorBackoffMS int `json:"error_backoff_ms"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	// Endpoint is the OTLP/HTTP collector host:port; empty disables export.
	Endpoint string `json:"endpoint"`
	Service  string `json:"service"`
}

// HeartbeatConfig periodically flags a root dialog as needing a drive.
type HeartbeatConfig struct {
	// Agent is the root dialog's agent id.
	Agent string `json:"agent"`
	// Cron is a standard 5-field cron expression.
	Cron string `json:"cron"`
	// Prompt is appended as the heartbeat's user prompt.
	Prompt string `json:"prompt"`
}

// Load reads the config file under workspace, applying defaults and
// MINDDRIVE_* environment overrides. A missing file yields pure defaults.
func Load(workspace string) (*Config, error) {
	cfg := &Config{
		Workspace: workspace,
		Store:     StoreConfig{Backend: DefaultStoreBackend},
		Gateway:   GatewayConfig{Host: DefaultGatewayHost, Port: DefaultGatewayPort},
	}

	path := filepath.Join(workspace, DefaultConfigFile)
	raw, err := os.ReadFile(path)
	if err == nil {
		if err := json5.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults(workspace)
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MINDDRIVE_STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("MINDDRIVE_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("MINDDRIVE_GATEWAY_HOST"); v != "" {
		c.Gateway.Host = v
	}
	if v := os.Getenv("MINDDRIVE_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("MINDDRIVE_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
}

func (c *Config) applyDefaults(workspace string) {
	if c.Workspace == "" {
		c.Workspace = workspace
	}
	if c.Store.Backend == "" {
		c.Store.Backend = DefaultStoreBackend
	}
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case "sqlite":
			c.Store.Path = filepath.Join(c.Workspace, ".minddrive", "dialogs.db")
		default:
			c.Store.Path = filepath.Join(c.Workspace, ".minddrive")
		}
	}
	if c.Gateway.Host == "" {
		c.Gateway.Host = DefaultGatewayHost
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
	if c.Driver.PollIntervalMS > 0 {
		c.Driver.PollInterval = time.Duration(c.Driver.PollIntervalMS) * time.Millisecond
	}
	if c.Driver.PollInterval <= 0 {
		c.Driver.PollInterval = DefaultPollInterval
	}
	if c.Driver.ErrorBackoffMS > 0 {
		c.Driver.ErrorBackoff = time.Duration(c.Driver.ErrorBackoffMS) * time.Millisecond
	}
	if c.Driver.ErrorBackoff <= 0 {
		c.Driver.ErrorBackoff = DefaultErrorBackoff
	}
	if c.Telemetry.Service == "" {
		c.Telemetry.Service = "minddrive"
	}
}

// MindsDir is the workspace's .minds directory.
func (c *Config) MindsDir() string {
	return filepath.Join(c.Workspace, ".minds")
}

// GatewayAddr is the host:port the gateway binds to.
func (c *Config) GatewayAddr() string {
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}
