// ABOUTME: Tests for the Prometheus collectors
// ABOUTME: Uses testutil against an isolated registry

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestCounters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Request("ping", "ok", time.Millisecond)
	m.Request("ping", "ok", time.Millisecond)
	m.Request("tools/call", "InvalidParams", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("ping", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("tools/call", "InvalidParams")))
}

func TestSessionGauge(t *testing.T) {
	m := New(nil)

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeSessions))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessions))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.Request("ping", "ok", 0)
	m.Fault("FrameTooLarge")
	m.Duplicate()
	m.ResultTooLarge()
	m.SessionStarted()
	m.SessionEnded()
	m.Pending(3)
	m.Notification("notifications/initialized")
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil)
	m.Fault("FrameTooLarge")
	m.Duplicate()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `tinymcp_framer_faults_total{kind="FrameTooLarge"} 1`), body)
	assert.Contains(t, body, "tinymcp_rpc_duplicate_ids_total 1")
}
