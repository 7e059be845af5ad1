// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, overrides, and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "server.yaml", `
server:
  addr: "127.0.0.1:9000"
  framing: "newline"
  read_timeout: "10s"

session:
  handler_timeout: "2s"
  keepalive_interval: "15s"
  resync_budget: 4

store:
  driver: "sqlite3"
  path: "./test.db"
  keep_sessions: 50

display:
  width: 240
  height: 135

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("expected addr '127.0.0.1:9000', got %q", cfg.Server.Addr)
	}
	if cfg.Server.Framing != "newline" {
		t.Errorf("expected framing 'newline', got %q", cfg.Server.Framing)
	}
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("expected read_timeout 10s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Session.HandlerTimeout != 2*time.Second {
		t.Errorf("expected handler_timeout 2s, got %v", cfg.Session.HandlerTimeout)
	}
	if cfg.Session.KeepaliveInterval != 15*time.Second {
		t.Errorf("expected keepalive_interval 15s, got %v", cfg.Session.KeepaliveInterval)
	}
	if cfg.Session.ResyncBudget != 4 {
		t.Errorf("expected resync_budget 4, got %d", cfg.Session.ResyncBudget)
	}
	if cfg.Store.Driver != "sqlite3" || cfg.Store.Path != "./test.db" || cfg.Store.KeepSessions != 50 {
		t.Errorf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Display.Width != 240 || cfg.Display.Height != 135 {
		t.Errorf("unexpected display config: %+v", cfg.Display)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}

	// Unset fields keep their defaults
	if cfg.Server.Transport != "tcp" {
		t.Errorf("expected default transport 'tcp', got %q", cfg.Server.Transport)
	}
	if cfg.Server.WriteTimeout != 5*time.Second {
		t.Errorf("expected default write_timeout 5s, got %v", cfg.Server.WriteTimeout)
	}
	if cfg.Session.MaxPending != 8 {
		t.Errorf("expected default max_pending 8, got %d", cfg.Session.MaxPending)
	}
}

func TestLoad_ValidTOML(t *testing.T) {
	path := writeConfig(t, "server.toml", `
[server]
addr = "127.0.0.1:9100"
transport = "tcp"

[session]
keepalive_interval = "1m"

[tailscale]
enabled = true
hostname = "tiny-dev"
ephemeral = true

[metrics]
enabled = false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9100" {
		t.Errorf("expected addr '127.0.0.1:9100', got %q", cfg.Server.Addr)
	}
	if cfg.Session.KeepaliveInterval != time.Minute {
		t.Errorf("expected keepalive_interval 1m, got %v", cfg.Session.KeepaliveInterval)
	}
	if !cfg.Tailscale.Enabled || cfg.Tailscale.Hostname != "tiny-dev" || !cfg.Tailscale.Ephemeral {
		t.Errorf("unexpected tailscale config: %+v", cfg.Tailscale)
	}
	if cfg.Metrics.Enabled {
		t.Error("expected metrics disabled")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_TS_KEY", "tskey-auth-123")
	t.Setenv("TEST_DB_DIR", "/var/lib/tinymcp")

	path := writeConfig(t, "server.yaml", `
store:
  path: "${TEST_DB_DIR}/config.db"
tailscale:
  auth_key: "${TEST_TS_KEY}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Store.Path != "/var/lib/tinymcp/config.db" {
		t.Errorf("expected expanded store path, got %q", cfg.Store.Path)
	}
	if cfg.Tailscale.AuthKey != "tskey-auth-123" {
		t.Errorf("expected expanded auth key, got %q", cfg.Tailscale.AuthKey)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TINYMCP_ADDR", "0.0.0.0:7000")
	t.Setenv("TINYMCP_FRAMING", "newline")
	t.Setenv("TINYMCP_KEEPALIVE_INTERVAL", "45s")
	t.Setenv("TINYMCP_STORE_DRIVER", "sqlite3")
	t.Setenv("TINYMCP_ADMIN_GRPC_ADDR", "")
	t.Setenv("TINYMCP_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("TINYMCP_LOG_LEVEL", "warn")

	path := writeConfig(t, "server.yaml", `
server:
  addr: "127.0.0.1:9000"
logging:
  level: "debug"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:7000" {
		t.Errorf("expected env addr to win, got %q", cfg.Server.Addr)
	}
	if cfg.Server.Framing != "newline" {
		t.Errorf("expected env framing, got %q", cfg.Server.Framing)
	}
	if cfg.Session.KeepaliveInterval != 45*time.Second {
		t.Errorf("expected keepalive 45s, got %v", cfg.Session.KeepaliveInterval)
	}
	if cfg.Store.Driver != "sqlite3" {
		t.Errorf("expected env store driver, got %q", cfg.Store.Driver)
	}
	if cfg.Admin.GRPCAddr != "" {
		t.Errorf("expected empty grpc addr to disable health, got %q", cfg.Admin.GRPCAddr)
	}
	if cfg.Tracing.Endpoint != "collector:4317" {
		t.Errorf("expected env OTLP endpoint, got %q", cfg.Tracing.Endpoint)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected env log level, got %q", cfg.Logging.Level)
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv failed: %v", err)
	}
	if cfg.Server.Framing != "length" {
		t.Errorf("expected length framing by default, got %q", cfg.Server.Framing)
	}
	if cfg.Session.HandlerTimeout != 5*time.Second {
		t.Errorf("expected 5s handler timeout, got %v", cfg.Session.HandlerTimeout)
	}
	if cfg.Session.KeepaliveInterval != 0 {
		t.Errorf("expected keepalive disabled by default, got %v", cfg.Session.KeepaliveInterval)
	}
	if cfg.Display.Width != 320 || cfg.Display.Height != 172 {
		t.Errorf("unexpected default display: %+v", cfg.Display)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid duration", "session:\n  handler_timeout: \"soon\"\n", "handler_timeout"},
		{"bad framing", "server:\n  framing: \"cobs\"\n", "server.framing"},
		{"bad transport", "server:\n  transport: \"serial\"\n", "server.transport"},
		{"stdio with tailscale", "server:\n  transport: stdio\ntailscale:\n  enabled: true\n", "tailscale requires"},
		{"tailscale without hostname", "tailscale:\n  enabled: true\n  hostname: \"\"\n", "tailscale.hostname"},
		{"bad driver", "store:\n  driver: \"postgres\"\n", "store.driver"},
		{"zero session history", "store:\n  keep_sessions: 0\n", "store.keep_sessions"},
		{"zero budget", "session:\n  resync_budget: 0\n", "resync_budget"},
		{"bad log level", "logging:\n  level: \"loud\"\n", "logging.level"},
		{"bad metrics path", "metrics:\n  path: \"metrics\"\n", "metrics.path"},
		{"invalid yaml", "server: [\n", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "server.yaml", tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("TINYMCP_CONFIG", "/etc/tinymcp.yaml")
	if got := DefaultPath(); got != "/etc/tinymcp.yaml" {
		t.Errorf("expected TINYMCP_CONFIG to win, got %q", got)
	}

	t.Setenv("TINYMCP_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "tinymcp", "server.yaml") {
		t.Errorf("expected XDG path, got %q", got)
	}
}

func TestLoadDefault_FallsBackToEnv(t *testing.T) {
	t.Setenv("TINYMCP_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, path, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault failed: %v", err)
	}
	if path != "" {
		t.Errorf("expected no config path, got %q", path)
	}
	if cfg.Server.Transport != "tcp" {
		t.Errorf("expected defaults, got %+v", cfg.Server)
	}
}

func TestLoadDefault_ExplicitMissing(t *testing.T) {
	t.Setenv("TINYMCP_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, _, err := LoadDefault(); err == nil {
		t.Fatal("expected error when TINYMCP_CONFIG points at a missing file")
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	data, err := Default().YAML()
	if err != nil {
		t.Fatalf("YAML failed: %v", err)
	}
	cfg, err := Load(writeConfig(t, "server.yaml", string(data)))
	if err != nil {
		t.Fatalf("Load of rendered defaults failed: %v", err)
	}
	if cfg.Session.HandlerTimeout != 5*time.Second {
		t.Errorf("expected handler timeout to survive, got %v", cfg.Session.HandlerTimeout)
	}
}
