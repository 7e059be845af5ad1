// ABOUTME: Liveness and readiness for the device server over gRPC health and plain HTTP.
// ABOUTME: Tracks the worker's state machine so health checks can see what the session is doing.

package health

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/tinymcp/internal/mcp"
)

// ServiceMCP is the gRPC health service name of the MCP endpoint. The empty
// service name reports the process as a whole.
const ServiceMCP = "tinymcp.MCP"

// Checker owns the health status. It is safe for concurrent use.
type Checker struct {
	srv    *health.Server
	logger *slog.Logger

	mu      sync.RWMutex
	ready   bool
	session string
	state   mcp.State
}

// New creates a checker reporting NOT_SERVING until MarkReady.
func New(logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Checker{
		srv:    health.NewServer(),
		logger: logger,
		state:  mcp.StateClosed,
	}
	c.srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	c.srv.SetServingStatus(ServiceMCP, healthpb.HealthCheckResponse_NOT_SERVING)
	return c
}

// Register installs the gRPC health service on s.
func (c *Checker) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, c.srv)
}

// Server exposes the underlying health server.
func (c *Checker) Server() healthpb.HealthServer {
	return c.srv
}

// MarkReady reports the MCP endpoint as accepting connections.
func (c *Checker) MarkReady() {
	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()
	c.srv.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	c.srv.SetServingStatus(ServiceMCP, healthpb.HealthCheckResponse_SERVING)
	c.logger.Debug("health: serving")
}

// Shutdown reports every service as NOT_SERVING and ignores later updates.
func (c *Checker) Shutdown() {
	c.mu.Lock()
	c.ready = false
	c.mu.Unlock()
	c.srv.Shutdown()
}

// Observe records a worker state transition. It satisfies mcp.StateObserver.
func (c *Checker) Observe(sessionID string, _, to mcp.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = to
	if to == mcp.StateClosed {
		c.session = ""
	} else {
		c.session = sessionID
	}
}

// Status is a snapshot of readiness and the worker's position.
type Status struct {
	Ready     bool
	SessionID string
	State     mcp.State
}

// Status returns the current snapshot.
func (c *Checker) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Status{Ready: c.ready, SessionID: c.session, State: c.state}
}

// HandleHealth returns 200 OK while the process is alive.
func (c *Checker) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleReady returns 200 once the MCP endpoint accepts connections.
func (c *Checker) HandleReady(w http.ResponseWriter, _ *http.Request) {
	st := c.Status()
	if !st.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	if st.SessionID == "" {
		_, _ = w.Write([]byte("ready (no client)"))
		return
	}
	_, _ = fmt.Fprintf(w, "ready (session %s, %s)", st.SessionID, st.State)
}
