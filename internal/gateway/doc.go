// Package gateway orchestrates the tinymcp server components.
//
// # Overview
//
// The gateway package owns every long-lived piece of the server: the
// configuration store, the simulated board and display, the tool registry,
// the single-session MCP server and the admin listeners.
//
//	type Gateway struct {
//	    config     *config.Config
//	    store      *store.SQLiteStore
//	    registry   *packs.Registry
//	    mcpServer  *mcp.Server
//	    grpcServer *grpc.Server
//	    httpServer *http.Server
//	    health     *health.Checker
//	    // ...
//	}
//
// # Transports
//
// With transport "tcp" the MCP listener is opened by transport.Listen, over
// plain TCP or tsnet when Tailscale is enabled. Clients are served one at a
// time. With transport "stdio" a single session runs over the process's
// standard streams and Run returns once stdin closes.
//
// # Admin Surface
//
// The gRPC listener serves only the standard health service. The HTTP
// listener serves:
//
//	GET /health          - liveness
//	GET /health/ready    - readiness, including the current session state
//	GET /sessions        - recent session records (?limit=1..500)
//	GET /metrics         - Prometheus metrics (path configurable)
//
// An empty admin address disables that listener.
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger, gateway.Options{Version: version})
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx)
//
// Run blocks until ctx is cancelled or a server fails, then stops the
// listeners gracefully and closes the store after the last session record
// has been written.
package gateway
