package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	ws := t.TempDir()
	cfg, err := Load(ws)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workspace != ws {
		t.Errorf("workspace = %q", cfg.Workspace)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("backend = %q, want file", cfg.Store.Backend)
	}
	if cfg.Store.Path != filepath.Join(ws, ".minddrive") {
		t.Errorf("store path = %q", cfg.Store.Path)
	}
	if cfg.GatewayAddr() != "127.0.0.1:18788" {
		t.Errorf("gateway addr = %q", cfg.GatewayAddr())
	}
	if cfg.Driver.PollInterval != DefaultPollInterval {
		t.Errorf("poll interval = %v", cfg.Driver.PollInterval)
	}
	if cfg.Driver.ErrorBackoff != DefaultErrorBackoff {
		t.Errorf("error backoff = %v", cfg.Driver.ErrorBackoff)
	}
	if cfg.Telemetry.Service != "minddrive" {
		t.Errorf("telemetry service = %q", cfg.Telemetry.Service)
	}
	if cfg.MindsDir() != filepath.Join(ws, ".minds") {
		t.Errorf("minds dir = %q", cfg.MindsDir())
	}
}

func TestLoadFile(t *testing.T) {
	ws := t.TempDir()
	// JSON5: comments and trailing commas are accepted.
	content := `{
	// local overrides
	store: {backend: "sqlite"},
	gateway: {port: 9900,},
	driver: {poll_interval_ms: 50, error_backoff_ms: 250},
	heartbeats: [
		{agent: "alice", cron: "*/5 * * * *", prompt: "check in"},
	],
}`
	if err := os.WriteFile(filepath.Join(ws, DefaultConfigFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(ws)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "sqlite" {
		t.Errorf("backend = %q", cfg.Store.Backend)
	}
	if cfg.Store.Path != filepath.Join(ws, ".minddrive", "dialogs.db") {
		t.Errorf("sqlite path = %q", cfg.Store.Path)
	}
	if cfg.Gateway.Port != 9900 || cfg.Gateway.Host != "127.0.0.1" {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Driver.PollInterval != 50*time.Millisecond {
		t.Errorf("poll interval = %v", cfg.Driver.PollInterval)
	}
	if cfg.Driver.ErrorBackoff != 250*time.Millisecond {
		t.Errorf("error backoff = %v", cfg.Driver.ErrorBackoff)
	}
	if len(cfg.Heartbeats) != 1 || cfg.Heartbeats[0].Agent != "alice" {
		t.Errorf("heartbeats = %+v", cfg.Heartbeats)
	}
}

func TestLoadBadFile(t *testing.T) {
	ws := t.TempDir()
	if err := os.WriteFile(filepath.Join(ws, DefaultConfigFile), []byte("{not valid"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(ws); err == nil {
		t.Error("malformed config did not error")
	}
}

func TestEnvOverrides(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("MINDDRIVE_STORE_BACKEND", "sqlite")
	t.Setenv("MINDDRIVE_STORE_PATH", "/tmp/custom.db")
	t.Setenv("MINDDRIVE_GATEWAY_HOST", "0.0.0.0")
	t.Setenv("MINDDRIVE_GATEWAY_PORT", "7000")
	t.Setenv("MINDDRIVE_OTLP_ENDPOINT", "collector:4318")

	cfg, err := Load(ws)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/tmp/custom.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.GatewayAddr() != "0.0.0.0:7000" {
		t.Errorf("gateway addr = %q", cfg.GatewayAddr())
	}
	if cfg.Telemetry.Endpoint != "collector:4318" {
		t.Errorf("otlp endpoint = %q", cfg.Telemetry.Endpoint)
	}

	// A malformed port is ignored in favor of the default.
	t.Setenv("MINDDRIVE_GATEWAY_PORT", "not-a-port")
	cfg, err = Load(ws)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != DefaultGatewayPort {
		t.Errorf("port = %d, want default on bad env", cfg.Gateway.Port)
	}
}
