// ABOUTME: Listener setup for the MCP endpoint over plain TCP or a Tailscale tsnet node.
// ABOUTME: Also provides the stdio ReadWriteCloser used by the stdio transport.

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"
)

// TailscaleConfig configures the optional tsnet listener.
type TailscaleConfig struct {
	Enabled   bool
	Hostname  string
	AuthKey   string
	StateDir  string
	Ephemeral bool
}

// ListenConfig selects where the MCP endpoint listens.
type ListenConfig struct {
	Addr      string
	Tailscale TailscaleConfig
	Logger    *slog.Logger
}

// Listener is a net.Listener plus whatever node owns it.
type Listener struct {
	net.Listener
	ts *tsnet.Server
}

// Close closes the listener and, for tailnet listeners, the tsnet node.
func (l *Listener) Close() error {
	err := l.Listener.Close()
	if l.ts != nil {
		err = errors.Join(err, l.ts.Close())
	}
	return err
}

// Listen opens the configured listener.
func Listen(ctx context.Context, cfg ListenConfig) (*Listener, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if !cfg.Tailscale.Enabled {
		var lc net.ListenConfig
		ln, err := lc.Listen(ctx, "tcp", cfg.Addr)
		if err != nil {
			return nil, fmt.Errorf("listening on %s: %w", cfg.Addr, err)
		}
		return &Listener{Listener: ln}, nil
	}

	ts := cfg.Tailscale
	stateDir, err := resolveStateDir(ts.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}
	authKey := ts.AuthKey
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return nil, errors.New("tailscale auth key required: set tailscale.auth_key or TS_AUTHKEY")
	}

	srv := &tsnet.Server{
		Hostname:  ts.Hostname,
		Dir:       stateDir,
		Ephemeral: ts.Ephemeral,
		AuthKey:   authKey,
		Logf: func(format string, args ...any) {
			logger.Debug(fmt.Sprintf(format, args...), "component", "tsnet")
		},
	}

	logger.Info("starting tailscale node", "hostname", ts.Hostname, "state_dir", stateDir, "ephemeral", ts.Ephemeral)
	if _, err := srv.Up(ctx); err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	_, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("parsing listen addr %q: %w", cfg.Addr, err)
	}
	ln, err := srv.Listen("tcp", ":"+port)
	if err != nil {
		_ = srv.Close()
		return nil, fmt.Errorf("listening on tailscale port %s: %w", port, err)
	}
	return &Listener{Listener: ln, ts: srv}, nil
}

func resolveStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "tinymcp", "tailscale"), nil
}

// Stdio joins stdin and stdout into one ReadWriteCloser.
type Stdio struct {
	io.Reader
	io.Writer
}

// NewStdio returns the process's stdin/stdout pair.
func NewStdio() *Stdio {
	return &Stdio{Reader: os.Stdin, Writer: os.Stdout}
}

// Close closes stdin so the refill goroutine observes EOF.
func (s *Stdio) Close() error {
	if c, ok := s.Reader.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
