// ABOUTME: Tests for tracing setup
// ABOUTME: Disabled tracing must be a harmless no-op

package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitWithEndpoint(t *testing.T) {
	// grpc.NewClient connects lazily, so no collector needs to be running.
	shutdown, err := Init(context.Background(), Config{Endpoint: "127.0.0.1:4317", Insecure: true, ServiceVersion: "test"})
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "check")
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}

func TestTracerAlwaysAvailable(t *testing.T) {
	assert.NotNil(t, Tracer())
}
