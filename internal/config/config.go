// ABOUTME: Configuration loading and parsing for tinymcp
// ABOUTME: Supports YAML or TOML files with env var expansion, duration parsing, and TINYMCP_* overrides

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "TINYMCP"

// Config represents the complete tinymcp configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Session   SessionConfig   `yaml:"session" toml:"session"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Display   DisplayConfig   `yaml:"display" toml:"display"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Admin     AdminConfig     `yaml:"admin" toml:"admin"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Tracing   TracingConfig   `yaml:"tracing" toml:"tracing"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the MCP endpoint configuration
type ServerConfig struct {
	Addr      string `yaml:"addr" toml:"addr"`
	Transport string `yaml:"transport" toml:"transport"` // tcp or stdio
	Framing   string `yaml:"framing" toml:"framing"`     // length or newline

	ReadTimeout  time.Duration `yaml:"-" toml:"-"`
	WriteTimeout time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ReadTimeoutRaw  string `yaml:"read_timeout" toml:"read_timeout"`
	WriteTimeoutRaw string `yaml:"write_timeout" toml:"write_timeout"`
}

// SessionConfig holds per-connection limits and timing
type SessionConfig struct {
	HandlerTimeout    time.Duration `yaml:"-" toml:"-"`
	KeepaliveInterval time.Duration `yaml:"-" toml:"-"`

	HandlerTimeoutRaw    string `yaml:"handler_timeout" toml:"handler_timeout"`
	KeepaliveIntervalRaw string `yaml:"keepalive_interval" toml:"keepalive_interval"`

	ResyncBudget int `yaml:"resync_budget" toml:"resync_budget"`
	MaxPending   int `yaml:"max_pending" toml:"max_pending"`
	QueueSlots   int `yaml:"queue_slots" toml:"queue_slots"`
}

// StoreConfig holds persisted configuration storage settings
type StoreConfig struct {
	Driver string `yaml:"driver" toml:"driver"` // sqlite (pure Go) or sqlite3 (cgo)
	Path   string `yaml:"path" toml:"path"`

	// KeepSessions bounds how many session summaries are retained.
	KeepSessions int `yaml:"keep_sessions" toml:"keep_sessions"`
}

// DisplayConfig holds the framebuffer panel size
type DisplayConfig struct {
	Width  int `yaml:"width" toml:"width"`
	Height int `yaml:"height" toml:"height"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// AdminConfig holds the out-of-band endpoints. An empty address disables it.
type AdminConfig struct {
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// TracingConfig holds OTLP trace export settings. An empty endpoint disables tracing.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Insecure bool   `yaml:"insecure" toml:"insecure"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            "0.0.0.0:8000",
			Transport:       "tcp",
			Framing:         "length",
			ReadTimeoutRaw:  "30s",
			WriteTimeoutRaw: "5s",
		},
		Session: SessionConfig{
			HandlerTimeoutRaw:    "5s",
			KeepaliveIntervalRaw: "0s",
			ResyncBudget:         8,
			MaxPending:           8,
			QueueSlots:           16,
		},
		Store: StoreConfig{
			Driver:       "sqlite",
			Path:         defaultStorePath(),
			KeepSessions: 200,
		},
		Display: DisplayConfig{Width: 320, Height: 172},
		Tailscale: TailscaleConfig{
			Hostname: "tinymcp",
		},
		Admin: AdminConfig{
			GRPCAddr: "127.0.0.1:50051",
			HTTPAddr: "127.0.0.1:9090",
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are parsed as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded, and
// TINYMCP_* overrides are applied after the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return finish(cfg)
}

// FromEnv returns the defaults with TINYMCP_* overrides applied.
func FromEnv() (*Config, error) {
	return finish(Default())
}

// LoadDefault loads the file at DefaultPath, or falls back to FromEnv when
// no file exists there.
func LoadDefault() (*Config, string, error) {
	path := DefaultPath()
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && os.Getenv(EnvPrefix+"_CONFIG") == "" {
			cfg, err := FromEnv()
			return cfg, "", err
		}
		return nil, path, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Load(path)
	return cfg, path, err
}

// DefaultPath returns TINYMCP_CONFIG, or server.yaml under the XDG config directory.
func DefaultPath() string {
	if p := os.Getenv(EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "server.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "tinymcp", "server.yaml")
}

func defaultStorePath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "tinymcp.db"
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "tinymcp", "tinymcp.db")
}

func finish(cfg *Config) (*Config, error) {
	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// YAML renders the configuration as a config file.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// envOverrides lists the settings that TINYMCP_* variables may override.
type envOverrides struct {
	Addr              string
	Transport         string
	Framing           string
	ReadTimeout       time.Duration `split_words:"true"`
	HandlerTimeout    time.Duration `split_words:"true"`
	KeepaliveInterval time.Duration `split_words:"true"`
	StoreDriver       string        `split_words:"true"`
	StorePath         string        `split_words:"true"`
	TailscaleEnabled  bool          `split_words:"true"`
	TailscaleHostname string        `split_words:"true"`
	AdminGRPCAddr     string        `split_words:"true"`
	AdminHTTPAddr     string        `split_words:"true"`
	OTLPEndpoint      string        `split_words:"true"`
	LogLevel          string        `split_words:"true"`
	LogFormat         string        `split_words:"true"`
}

// applyEnv overlays TINYMCP_* variables. Unset variables keep the file's values.
func applyEnv(cfg *Config) error {
	o := envOverrides{
		Addr:              cfg.Server.Addr,
		Transport:         cfg.Server.Transport,
		Framing:           cfg.Server.Framing,
		ReadTimeout:       cfg.Server.ReadTimeout,
		HandlerTimeout:    cfg.Session.HandlerTimeout,
		KeepaliveInterval: cfg.Session.KeepaliveInterval,
		StoreDriver:       cfg.Store.Driver,
		StorePath:         cfg.Store.Path,
		TailscaleEnabled:  cfg.Tailscale.Enabled,
		TailscaleHostname: cfg.Tailscale.Hostname,
		AdminGRPCAddr:     cfg.Admin.GRPCAddr,
		AdminHTTPAddr:     cfg.Admin.HTTPAddr,
		OTLPEndpoint:      cfg.Tracing.Endpoint,
		LogLevel:          cfg.Logging.Level,
		LogFormat:         cfg.Logging.Format,
	}
	if err := envconfig.Process(EnvPrefix, &o); err != nil {
		return err
	}

	cfg.Server.Addr = o.Addr
	cfg.Server.Transport = o.Transport
	cfg.Server.Framing = o.Framing
	cfg.Server.ReadTimeout = o.ReadTimeout
	cfg.Session.HandlerTimeout = o.HandlerTimeout
	cfg.Session.KeepaliveInterval = o.KeepaliveInterval
	cfg.Store.Driver = o.StoreDriver
	cfg.Store.Path = o.StorePath
	cfg.Tailscale.Enabled = o.TailscaleEnabled
	cfg.Tailscale.Hostname = o.TailscaleHostname
	cfg.Admin.GRPCAddr = o.AdminGRPCAddr
	cfg.Admin.HTTPAddr = o.AdminHTTPAddr
	cfg.Tracing.Endpoint = o.OTLPEndpoint
	cfg.Logging.Level = o.LogLevel
	cfg.Logging.Format = o.LogFormat
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case "tcp":
		if c.Server.Addr == "" {
			return fmt.Errorf("server.addr is required for the tcp transport")
		}
	case "stdio":
	default:
		return fmt.Errorf("server.transport must be tcp or stdio, got %q", c.Server.Transport)
	}

	if c.Server.Framing != "length" && c.Server.Framing != "newline" {
		return fmt.Errorf("server.framing must be length or newline, got %q", c.Server.Framing)
	}

	if c.Tailscale.Enabled {
		if c.Server.Transport != "tcp" {
			return fmt.Errorf("tailscale requires the tcp transport")
		}
		if c.Tailscale.Hostname == "" {
			return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
		}
	}

	if c.Session.HandlerTimeout <= 0 {
		return fmt.Errorf("session.handler_timeout must be positive")
	}
	if c.Session.KeepaliveInterval < 0 || c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.Session.ResyncBudget <= 0 {
		return fmt.Errorf("session.resync_budget must be positive")
	}
	if c.Session.MaxPending <= 0 {
		return fmt.Errorf("session.max_pending must be positive")
	}
	if c.Session.QueueSlots <= 0 {
		return fmt.Errorf("session.queue_slots must be positive")
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "sqlite3" {
		return fmt.Errorf("store.driver must be sqlite or sqlite3, got %q", c.Store.Driver)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Store.KeepSessions <= 0 {
		return fmt.Errorf("store.keep_sessions must be positive")
	}

	if c.Display.Width <= 0 || c.Display.Height <= 0 {
		return fmt.Errorf("display.width and display.height must be positive")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.read_timeout", cfg.Server.ReadTimeoutRaw, &cfg.Server.ReadTimeout},
		{"server.write_timeout", cfg.Server.WriteTimeoutRaw, &cfg.Server.WriteTimeout},
		{"session.handler_timeout", cfg.Session.HandlerTimeoutRaw, &cfg.Session.HandlerTimeout},
		{"session.keepalive_interval", cfg.Session.KeepaliveIntervalRaw, &cfg.Session.KeepaliveInterval},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
