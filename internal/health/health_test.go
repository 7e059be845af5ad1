// ABOUTME: Tests for the health checker over gRPC and HTTP.
// ABOUTME: Uses an in-memory bufconn listener for the gRPC round trip.

package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/2389/tinymcp/internal/mcp"
)

func check(t *testing.T, c *Checker, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := c.Server().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestLifecycle(t *testing.T) {
	c := New(nil)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ServiceMCP))

	c.MarkReady()
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ServiceMCP))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))

	c.Shutdown()
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ServiceMCP))
	assert.False(t, c.Status().Ready)
}

func TestObserveTracksSession(t *testing.T) {
	c := New(nil)

	c.Observe("abc", mcp.StateIdle, mcp.StateDispatching)
	st := c.Status()
	assert.Equal(t, "abc", st.SessionID)
	assert.Equal(t, mcp.StateDispatching, st.State)

	c.Observe("abc", mcp.StateAwaitingFrame, mcp.StateClosed)
	st = c.Status()
	assert.Empty(t, st.SessionID)
	assert.Equal(t, mcp.StateClosed, st.State)
}

func TestHTTPHandlers(t *testing.T) {
	c := New(nil)

	rec := httptest.NewRecorder()
	c.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	c.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	c.MarkReady()
	c.Observe("s1", mcp.StateIdle, mcp.StateAwaitingFrame)
	rec = httptest.NewRecorder()
	c.HandleReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "s1")
	assert.Contains(t, rec.Body.String(), "AwaitingFrame")
}

func TestGRPCRoundTrip(t *testing.T) {
	c := New(nil)
	c.MarkReady()

	ln := bufconn.Listen(1 << 16)
	srv := grpc.NewServer()
	c.Register(srv)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return ln.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(),
		&healthpb.HealthCheckRequest{Service: ServiceMCP})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}
