// ABOUTME: Tests for the Gateway orchestrator
// ABOUTME: Runs the full server over TCP and stdio and checks the admin endpoints

package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/tinymcp/internal/config"
	"github.com/2389/tinymcp/internal/health"
	"github.com/2389/tinymcp/internal/store"
)

// freeAddr finds an available loopback port.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// testConfig creates a minimal config for testing with available ports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Server.Framing = "newline"
	cfg.Server.ReadTimeout = time.Second
	cfg.Session.HandlerTimeout = time.Second
	cfg.Store.Path = ":memory:"
	cfg.Admin.GRPCAddr = freeAddr(t)
	cfg.Admin.HTTPAddr = freeAddr(t)
	require.NoError(t, cfg.Validate())
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runGateway starts gw and returns a stop function that waits for Run.
func runGateway(t *testing.T, gw *Gateway) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	select {
	case <-gw.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("gateway exited early: %v", err)
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("gateway did not become ready")
	}

	var stopped bool
	var result error
	stop := func() error {
		if !stopped {
			cancel()
			select {
			case result = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("gateway did not stop")
			}
			stopped = true
		}
		return result
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func dial(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (c *client) call(line string) map[string]any {
	c.t.Helper()
	_, err := c.conn.Write([]byte(line + "\n"))
	require.NoError(c.t, err)
	reply, err := c.r.ReadString('\n')
	require.NoError(c.t, err)

	var m map[string]any
	require.NoError(c.t, json.Unmarshal([]byte(reply), &m), reply)
	return m
}

// toolText extracts the text content of a tools/call result.
func toolText(t *testing.T, reply map[string]any) map[string]any {
	t.Helper()
	require.Nil(t, reply["error"], "unexpected error: %v", reply["error"])
	result := reply["result"].(map[string]any)
	content := result["content"].([]any)
	require.Len(t, content, 1)
	text := content[0].(map[string]any)["text"].(string)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	return out
}

func TestNew_RegistersAllTools(t *testing.T) {
	gw, err := New(testConfig(t), testLogger(), Options{Version: "test"})
	require.NoError(t, err)
	defer func() { _ = gw.Shutdown(context.Background()) }()

	names := make([]string, 0, gw.Registry().Len())
	for _, tool := range gw.Registry().Tools() {
		names = append(names, tool.Definition.Name)
	}
	assert.ElementsMatch(t, []string{
		"echo", "system_info", "display_control", "gpio_control",
		"device_status", "config_get", "config_set", "config_list",
	}, names)
}

func TestNew_InvalidStoreDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = "postgres"

	_, err := New(cfg, testLogger(), Options{})
	assert.Error(t, err)
}

func TestRun_ServesMCPOverTCP(t *testing.T) {
	gw, err := New(testConfig(t), testLogger(), Options{Version: "test"})
	require.NoError(t, err)
	stop := runGateway(t, gw)

	c := dial(t, gw.MCPAddr().String())

	initReply := c.call(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"1"}}}`)
	result := initReply["result"].(map[string]any)
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
	assert.Equal(t, "tinymcp", result["serverInfo"].(map[string]any)["name"])

	set := toolText(t, c.call(`{"id":2,"method":"tools/call","params":{"name":"config_set","arguments":{"key":"wifi_ssid","value":"lab"}}}`))
	assert.Equal(t, "success", set["status"])

	get := toolText(t, c.call(`{"id":3,"method":"tools/call","params":{"name":"config_get","arguments":{"key":"wifi_ssid"}}}`))
	assert.Equal(t, "lab", get["data"].(map[string]any)["value"])

	unknown := c.call(`{"id":4,"method":"unknown_tool","params":{}}`)
	assert.Equal(t, float64(-32601), unknown["error"].(map[string]any)["code"])

	status := c.call(`{"id":5,"method":"device_status","params":{"action":"get_connections"}}`)
	require.Nil(t, status["error"])

	assert.NoError(t, stop())
}

func TestRun_AdminEndpoints(t *testing.T) {
	cfg := testConfig(t)
	gw, err := New(cfg, testLogger(), Options{Version: "test"})
	require.NoError(t, err)
	runGateway(t, gw)

	resp, err := http.Get("http://" + cfg.Admin.HTTPAddr + "/health/ready")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + cfg.Admin.HTTPAddr + cfg.Metrics.Path)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	conn, err := grpc.NewClient(cfg.Admin.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	check, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: health.ServiceMCP})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check.GetStatus())
}

func TestRun_Stdio(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Transport = "stdio"
	cfg.Admin.GRPCAddr = ""
	cfg.Admin.HTTPAddr = ""

	serverSide, clientSide := net.Pipe()
	gw, err := New(cfg, testLogger(), Options{Version: "test", Stdio: serverSide})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- gw.Run(context.Background()) }()

	require.NoError(t, clientSide.SetDeadline(time.Now().Add(5*time.Second)))
	c := &client{t: t, conn: clientSide, r: bufio.NewReader(clientSide)}
	reply := c.call(`{"id":1,"method":"ping","params":{}}`)
	assert.Equal(t, map[string]any{}, reply["result"])

	// Closing stdin ends the only session and with it the process.
	require.NoError(t, clientSide.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("stdio gateway did not exit after the client closed")
	}
}

func TestHandleSessions(t *testing.T) {
	gw, err := New(testConfig(t), testLogger(), Options{})
	require.NoError(t, err)
	defer func() { _ = gw.Shutdown(context.Background()) }()

	now := time.Now()
	require.NoError(t, gw.store.RecordSession(context.Background(), &store.SessionRecord{
		ID: "s1", RemoteAddr: "10.0.0.2:5000", StartedAt: now.Add(-time.Minute), EndedAt: now,
		Requests: 4, Errors: 1, CloseCause: "peer closed",
	}))

	rec := httptest.NewRecorder()
	gw.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/sessions?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var views []sessionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 1)
	assert.Equal(t, "s1", views[0].ID)
	assert.Equal(t, 4, views[0].Requests)

	rec = httptest.NewRecorder()
	gw.handleSessions(rec, httptest.NewRequest(http.MethodGet, "/sessions?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLinksReflectConnection(t *testing.T) {
	gw, err := New(testConfig(t), testLogger(), Options{})
	require.NoError(t, err)
	defer func() { _ = gw.Shutdown(context.Background()) }()

	links := gw.links()
	require.Len(t, links, 2)
	assert.Equal(t, "tcp", links[0].Name)
	assert.True(t, links[0].Available)
	assert.False(t, links[0].Connected)
	assert.False(t, links[1].Available)
}
