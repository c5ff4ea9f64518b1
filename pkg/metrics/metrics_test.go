package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/bookrent/pkg/metrics"
)

func TestMetrics_Counters(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	m.ObserveGatewayCall("create_invoice", "ok", 20*time.Millisecond)
	m.ObserveGatewayCall("create_invoice", "http_error", 10*time.Millisecond)
	m.ObserveCallback("activated", time.Millisecond)
	m.ObserveCallback("duplicate", time.Millisecond)
	m.ObserveCallback("duplicate", time.Millisecond)
	m.ObserveTask("notify.Message", "completed", time.Millisecond)
	m.ObserveReconcile(3, 1, 1)

	assert.Equal(t, 5, testutil.CollectAndCount(reg,
		"bookrent_gateway_requests_total",
		"bookrent_webhook_callbacks_total",
		"bookrent_queue_tasks_total"))

	expected := `
# HELP bookrent_webhook_callbacks_total Gateway callbacks by processing outcome.
# TYPE bookrent_webhook_callbacks_total counter
bookrent_webhook_callbacks_total{outcome="activated"} 1
bookrent_webhook_callbacks_total{outcome="duplicate"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "bookrent_webhook_callbacks_total"))
}

func TestMetrics_ReusesRegisteredCollectors(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	first, err := metrics.New(reg)
	require.NoError(t, err)
	second, err := metrics.New(reg)
	require.NoError(t, err)

	first.ObserveCallback("ignored", 0)
	second.ObserveCallback("ignored", 0)

	expected := `
# HELP bookrent_webhook_callbacks_total Gateway callbacks by processing outcome.
# TYPE bookrent_webhook_callbacks_total counter
bookrent_webhook_callbacks_total{outcome="ignored"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "bookrent_webhook_callbacks_total"))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveGatewayCall("check_status", "ok", 0)
		m.ObserveCallback("activated", 0)
		m.ObserveTask("x", "dead", 0)
		m.ObserveReconcile(1, 1, 0)
	})
}

func TestHandler(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)
	m.ObserveReconcile(2, 0, 0)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "bookrent_reconciler_checked_total 2")
}
