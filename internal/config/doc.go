// Package config handles configuration loading for tinymcp.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion, then overlaid with TINYMCP_* variables and validated. Every
// setting has a default, so the server also runs with no file at all.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from TINYMCP_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/tinymcp/server.yaml (or ~/.config/tinymcp/server.yaml)
//
// Files ending in .toml are parsed as TOML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	tailscale:
//	  auth_key: "${TS_AUTHKEY}"
//
// # Overrides
//
// A subset of settings can be overridden without editing the file:
//
//	TINYMCP_ADDR, TINYMCP_FRAMING, TINYMCP_TRANSPORT
//	TINYMCP_READ_TIMEOUT, TINYMCP_HANDLER_TIMEOUT, TINYMCP_KEEPALIVE_INTERVAL
//	TINYMCP_STORE_DRIVER, TINYMCP_STORE_PATH
//	TINYMCP_TAILSCALE_ENABLED, TINYMCP_TAILSCALE_HOSTNAME
//	TINYMCP_ADMIN_GRPC_ADDR, TINYMCP_ADMIN_HTTP_ADDR
//	TINYMCP_OTLP_ENDPOINT, TINYMCP_LOG_LEVEL, TINYMCP_LOG_FORMAT
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	session:
//	  handler_timeout: "5s"
//	  keepalive_interval: "30s"
//
// # Example
//
//	server:
//	  addr: "0.0.0.0:8000"
//	  transport: "tcp"        # or stdio
//	  framing: "length"       # or newline
//	  read_timeout: "30s"
//	  write_timeout: "5s"
//
//	session:
//	  handler_timeout: "5s"
//	  keepalive_interval: "0s"
//	  resync_budget: 8
//	  max_pending: 8
//
//	store:
//	  driver: "sqlite"        # sqlite (pure Go) or sqlite3 (cgo)
//	  path: "~/.local/share/tinymcp/tinymcp.db"
//	  keep_sessions: 200      # session summaries retained
//
//	admin:
//	  grpc_addr: "127.0.0.1:50051"
//	  http_addr: "127.0.0.1:9090"
//
//	logging:
//	  level: "info"
//	  format: "text"
package config
