// ABOUTME: Gateway orchestrator that coordinates the MCP endpoint, gRPC health, and admin HTTP
// ABOUTME: Owns the store, simulated board, display panel, and tool registry lifecycle

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/tinymcp/internal/builtins"
	"github.com/2389/tinymcp/internal/config"
	"github.com/2389/tinymcp/internal/device"
	"github.com/2389/tinymcp/internal/display"
	"github.com/2389/tinymcp/internal/framer"
	"github.com/2389/tinymcp/internal/health"
	"github.com/2389/tinymcp/internal/mcp"
	"github.com/2389/tinymcp/internal/metrics"
	"github.com/2389/tinymcp/internal/packs"
	"github.com/2389/tinymcp/internal/store"
	"github.com/2389/tinymcp/internal/transport"
)

// shutdownTimeout bounds graceful shutdown of the admin servers.
const shutdownTimeout = 5 * time.Second

// Options carries process-level collaborators that do not belong in the config file.
type Options struct {
	Version string
	// Stdio is used when server.transport is stdio. Defaults to the process's stdin/stdout.
	Stdio io.ReadWriteCloser
	// RestartHook runs when a client requests a restart through system_info.
	RestartHook func()
}

// Gateway orchestrates the tinymcp server components.
type Gateway struct {
	config *config.Config
	opts   Options
	logger *slog.Logger

	store    store.Store
	board    *device.Board
	panel    *display.Framebuffer
	registry *packs.Registry
	metrics  *metrics.Metrics
	health   *health.Checker

	mcpServer  *mcp.Server
	grpcServer *grpc.Server
	httpServer *http.Server

	// ready is closed once the MCP endpoint accepts clients.
	ready    chan struct{}
	listener *transport.Listener

	closeOnce sync.Once
	closeErr  error
}

// initStore opens the persisted configuration store.
func initStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	s, err := store.Open(store.Options{
		Driver:       cfg.Store.Driver,
		Path:         cfg.Store.Path,
		Logger:       logger.With("component", "store"),
		KeepSessions: cfg.Store.KeepSessions,
	})
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

// createGRPCServer creates the gRPC server that carries the health service.
func createGRPCServer() *grpc.Server {
	return grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
}

// BuildRegistry assembles every built-in pack into one registry. links may be nil.
func BuildRegistry(logger *slog.Logger, board *device.Board, panel display.Sink, kv store.KV, links builtins.LinkReporter) (*packs.Registry, error) {
	registry, err := packs.NewRegistry(logger,
		builtins.SystemPack(board),
		builtins.DisplayPack(panel),
		builtins.GPIOPack(board),
		builtins.StatusPack(board, panel, links),
		builtins.ConfigPack(kv),
	)
	if err != nil {
		return nil, fmt.Errorf("building tool registry: %w", err)
	}
	return registry, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts Options) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}

	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config: cfg,
		opts:   opts,
		logger: logger.With("component", "gateway"),
		store:  s,
		board:  device.NewBoard(opts.Version, device.WithRestartHook(opts.RestartHook)),
		panel:  display.NewFramebuffer(cfg.Display.Width, cfg.Display.Height),
		health: health.New(logger.With("component", "health")),
		ready:  make(chan struct{}),
	}
	if cfg.Metrics.Enabled {
		gw.metrics = metrics.New(nil)
	}

	gw.registry, err = BuildRegistry(logger.With("component", "pack-registry"), gw.board, gw.panel, s, builtins.LinkReporterFunc(gw.links))
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	router := packs.NewRouter(packs.RouterConfig{
		Registry: gw.registry,
		Logger:   logger.With("component", "pack-router"),
		Timeout:  cfg.Session.HandlerTimeout,
	})
	dispatcher := mcp.NewDispatcher(mcp.DispatcherConfig{
		Router:     router,
		ServerInfo: mcpgo.Implementation{Name: "tinymcp", Version: opts.Version},
		Logger:     logger.With("component", "dispatcher"),
		Metrics:    gw.metrics,
	})
	worker := mcp.NewWorker(mcp.WorkerConfig{
		Dispatcher:        dispatcher,
		Logger:            logger.With("component", "worker"),
		Metrics:           gw.metrics,
		KeepaliveInterval: cfg.Session.KeepaliveInterval,
		MaxPending:        cfg.Session.MaxPending,
	})
	gw.mcpServer = mcp.NewServer(mcp.ServerConfig{
		Worker:            worker,
		Framing:           framer.Mode(cfg.Server.Framing),
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		KeepaliveInterval: cfg.Session.KeepaliveInterval,
		ResyncBudget:      cfg.Session.ResyncBudget,
		QueueSlots:        cfg.Session.QueueSlots,
		Sessions:          s,
		Observer:          gw.health.Observe,
		Metrics:           gw.metrics,
		Logger:            logger.With("component", "mcp"),
	})

	gw.grpcServer = createGRPCServer()
	gw.health.Register(gw.grpcServer)

	// Health endpoints - no auth required
	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.health.HandleHealth)
	mux.HandleFunc("/health/ready", gw.health.HandleReady)
	mux.HandleFunc("/sessions", gw.handleSessions)
	if gw.metrics != nil {
		mux.Handle(cfg.Metrics.Path, gw.metrics.Handler())
	}
	gw.httpServer = &http.Server{
		Addr:              cfg.Admin.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Registry returns the tool registry.
func (g *Gateway) Registry() *packs.Registry { return g.registry }

// Ready is closed once the MCP endpoint accepts clients.
func (g *Gateway) Ready() <-chan struct{} { return g.ready }

// MCPAddr returns the MCP listener address. Valid after Ready, and nil for stdio.
func (g *Gateway) MCPAddr() net.Addr {
	if g.listener == nil {
		return nil
	}
	return g.listener.Addr()
}

// links reports the device's transports for the status pack.
func (g *Gateway) links() []builtins.Link {
	connected := g.mcpServer != nil && g.mcpServer.Connected()
	ts := g.config.Tailscale.Enabled
	return []builtins.Link{
		{Name: g.config.Server.Transport, Available: true, Connected: connected && !ts},
		{Name: "tailscale", Available: ts, Connected: connected && ts},
	}
}

// setupListeners opens the admin listeners. Empty addresses disable them.
func (g *Gateway) setupListeners() (grpcLn, httpLn net.Listener, err error) {
	if addr := g.config.Admin.GRPCAddr; addr != "" {
		grpcLn, err = net.Listen("tcp", addr)
		if err != nil {
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}
	if addr := g.config.Admin.HTTPAddr; addr != "" {
		httpLn, err = net.Listen("tcp", addr)
		if err != nil {
			if grpcLn != nil {
				_ = grpcLn.Close()
			}
			return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

// Run starts every server and blocks until ctx is canceled, a server fails,
// or, with the stdio transport, the client closes stdin.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	grpcLn, httpLn, err := g.setupListeners()
	if err != nil {
		_ = g.closeStore()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, egCtx := errgroup.WithContext(runCtx)

	if grpcLn != nil {
		eg.Go(func() error {
			g.logger.Info("gRPC health listening", "addr", grpcLn.Addr().String())
			if err := g.grpcServer.Serve(grpcLn); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("gRPC server: %w", err)
			}
			return nil
		})
	}
	if httpLn != nil {
		eg.Go(func() error {
			g.logger.Info("HTTP admin listening", "addr", httpLn.Addr().String())
			if err := g.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("HTTP server: %w", err)
			}
			return nil
		})
	}

	eg.Go(func() error {
		if g.config.Server.Transport == "stdio" {
			// The process serves exactly one client over stdio.
			defer cancel()
			return g.serveStdio(egCtx)
		}
		return g.serveTCP(egCtx)
	})

	eg.Go(func() error {
		<-egCtx.Done()
		g.logger.Info("context canceled, initiating shutdown")
		return g.gracefulShutdown()
	})

	serverErr := eg.Wait()
	// The worker may record its final session until Wait returns.
	closeErr := g.closeStore()
	if serverErr != nil {
		return serverErr
	}
	return closeErr
}

func (g *Gateway) serveTCP(ctx context.Context) error {
	ln, err := transport.Listen(ctx, transport.ListenConfig{
		Addr: g.config.Server.Addr,
		Tailscale: transport.TailscaleConfig{
			Enabled:   g.config.Tailscale.Enabled,
			Hostname:  g.config.Tailscale.Hostname,
			AuthKey:   g.config.Tailscale.AuthKey,
			StateDir:  g.config.Tailscale.StateDir,
			Ephemeral: g.config.Tailscale.Ephemeral,
		},
		Logger: g.logger,
	})
	if err != nil {
		return err
	}
	g.listener = ln
	defer func() { _ = ln.Close() }()

	g.health.MarkReady()
	close(g.ready)
	return g.mcpServer.Serve(ctx, ln)
}

func (g *Gateway) serveStdio(ctx context.Context) error {
	rwc := g.opts.Stdio
	if rwc == nil {
		rwc = transport.NewStdio()
	}
	g.health.MarkReady()
	close(g.ready)
	g.logger.Info("MCP endpoint on stdio", "framing", g.config.Server.Framing)

	err := g.mcpServer.ServeConn(ctx, rwc, "stdio")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// gracefulShutdown stops the admin servers with a fresh context and timeout.
// Uses context.Background() since the run context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return g.stopServers(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (g *Gateway) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		g.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		g.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (g *Gateway) stopServers(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.health.Shutdown()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	g.shutdownGRPCServer(ctx)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

func (g *Gateway) closeStore() error {
	g.closeOnce.Do(func() {
		if err := g.store.Close(); err != nil {
			g.closeErr = fmt.Errorf("store close: %w", err)
		}
	})
	return g.closeErr
}

// Shutdown stops all servers and releases resources. Run does this itself;
// call Shutdown only for a gateway that was never run.
func (g *Gateway) Shutdown(ctx context.Context) error {
	return errors.Join(g.stopServers(ctx), g.closeStore())
}

type sessionView struct {
	ID         string    `json:"id"`
	RemoteAddr string    `json:"remote_addr"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
	Requests   int       `json:"requests"`
	Errors     int       `json:"errors"`
	CloseCause string    `json:"close_cause"`
}

// handleSessions lists recently finished sessions, newest first.
func (g *Gateway) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			http.Error(w, "limit must be between 1 and 500", http.StatusBadRequest)
			return
		}
		limit = n
	}

	recent, err := g.store.RecentSessions(r.Context(), limit)
	if err != nil {
		g.logger.Error("failed to list sessions", "error", err)
		http.Error(w, "failed to list sessions", http.StatusInternalServerError)
		return
	}

	views := make([]sessionView, 0, len(recent))
	for _, rec := range recent {
		views = append(views, sessionView{
			ID:         rec.ID,
			RemoteAddr: rec.RemoteAddr,
			StartedAt:  rec.StartedAt,
			EndedAt:    rec.EndedAt,
			Requests:   rec.Requests,
			Errors:     rec.Errors,
			CloseCause: rec.CloseCause,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(views)
}
