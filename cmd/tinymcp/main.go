// ABOUTME: Entry point for the tinymcp device server
// ABOUTME: Serves MCP tools over TCP or stdio and offers admin subcommands

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/tinymcp/internal/config"
	"github.com/2389/tinymcp/internal/device"
	"github.com/2389/tinymcp/internal/display"
	"github.com/2389/tinymcp/internal/gateway"
	"github.com/2389/tinymcp/internal/health"
	"github.com/2389/tinymcp/internal/store"
	"github.com/2389/tinymcp/internal/telemetry"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
  _   _                                
 | |_(_)_ __  _   _ _ __ ___   ___ _ __  
 | __| | '_ \| | | | '_ ' _ \ / __| '_ \ 
 | |_| | | | | |_| | | | | | | (__| |_) |
  \__|_|_| |_|\__, |_| |_| |_|\___| .__/ 
              |___/               |_|    
`

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: tinymcp <command>")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve      Start the MCP server")
	fmt.Fprintln(os.Stderr, "  init       Write a config file with default settings")
	fmt.Fprintln(os.Stderr, "  health     Check server health over gRPC")
	fmt.Fprintln(os.Stderr, "  sessions   Show recent client sessions")
	fmt.Fprintln(os.Stderr, "  tools      List the built-in tools")
	fmt.Fprintln(os.Stderr, "  version    Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "sessions":
		err = runSessions(ctx)
	case "tools":
		err = runTools()
	case "version":
		fmt.Println(version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, string, error) {
	cfg, path, err := config.LoadDefault()
	if err != nil {
		return nil, "", fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context) error {
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	// stdout carries the protocol in stdio mode, so everything human goes to stderr.
	out := color.Error

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(out, banner)
	gray.Fprintf(out, "    version: %s\n\n", version)

	if configPath == "" {
		configPath = "(defaults)"
	}
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", configPath)
	green.Fprint(out, "    ▶ ")
	if cfg.Server.Transport == "stdio" {
		fmt.Fprintf(out, "MCP:       stdio (%s framing)\n", cfg.Server.Framing)
	} else {
		fmt.Fprintf(out, "MCP:       %s (%s framing)\n", cfg.Server.Addr, cfg.Server.Framing)
	}
	if cfg.Admin.GRPCAddr != "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Health:    %s\n", cfg.Admin.GRPCAddr)
	}
	if cfg.Admin.HTTPAddr != "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "HTTP:      %s\n", cfg.Admin.HTTPAddr)
	}
	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	}
	if cfg.Session.KeepaliveInterval > 0 {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "Keepalive: %s\n", cfg.Session.KeepaliveInterval)
	} else {
		yellow.Fprintln(out, "    ▶ Keepalive disabled")
	}
	fmt.Fprintln(out)

	logger := setupLogger(cfg.Logging, os.Stderr)
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		ServiceName:    "tinymcp",
		ServiceVersion: version,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	logger.Info("starting tinymcp",
		"config", configPath,
		"transport", cfg.Server.Transport,
		"addr", cfg.Server.Addr,
	)

	gw, err := gateway.New(cfg, logger, gateway.Options{
		Version: version,
		RestartHook: func() {
			logger.Warn("restart requested by client")
		},
	})
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("tinymcp configuration setup")
	fmt.Println("===========================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := strings.ToLower(prompt(reader, "File exists. Overwrite?", "no"))
		if overwrite != "yes" && overwrite != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	cfg := config.Default()
	cfg.Server.Framing = prompt(reader, "Framing (length/newline)", cfg.Server.Framing)
	cfg.Store.Path = prompt(reader, "Store path", cfg.Store.Path)
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}

	var content strings.Builder
	content.WriteString("# tinymcp configuration\n")
	content.WriteString("# Generated by tinymcp init\n\n")
	content.Write(data)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(content.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	if cfg.Store.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the server:")
	fmt.Println("  tinymcp serve")
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

func runHealth(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Admin.GRPCAddr == "" {
		return fmt.Errorf("admin.grpc_addr is not configured")
	}

	conn, err := grpc.NewClient(cfg.Admin.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Admin.GRPCAddr, err)
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: health.ServiceMCP})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("unhealthy: %s", resp.GetStatus())
	}

	fmt.Println("healthy")
	return nil
}

type sessionRow struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Requests   int       `json:"requests"`
	Errors     int       `json:"errors"`
	CloseCause string    `json:"close_cause"`
}

func runSessions(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Admin.HTTPAddr == "" {
		return fmt.Errorf("admin.http_addr is not configured")
	}

	url := fmt.Sprintf("http://%s/sessions", cfg.Admin.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("sessions request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("sessions request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var rows []sessionRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return fmt.Errorf("decoding sessions: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tREMOTE\tSTARTED\tDURATION\tREQUESTS\tERRORS\tCAUSE")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.RemoteAddr, r.StartedAt.Local().Format(time.DateTime),
			r.EndedAt.Sub(r.StartedAt).Round(time.Second), r.Requests, r.Errors, r.CloseCause)
	}
	return w.Flush()
}

func runTools() error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry, err := gateway.BuildRegistry(logger,
		device.NewBoard(version),
		display.NewFramebuffer(config.Default().Display.Width, config.Default().Display.Height),
		store.NewMockStore(),
		nil,
	)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	for _, tool := range registry.Tools() {
		bold.Printf("%s", tool.Definition.Name)
		fmt.Printf("  %s\n", tool.Definition.Description)
		for _, p := range tool.Definition.Schema.Params {
			req := ""
			if p.Required {
				req = " (required)"
			}
			fmt.Printf("    %-12s %-8s%s %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return nil
}
