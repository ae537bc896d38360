package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New("")
	b := New("")

	a.ObserveSignal("OPEN")
	a.ObserveSignal("OPEN")
	b.ObserveSignal("OPEN")

	assert.Equal(t, 2.0, testutil.ToFloat64(a.SignalsEmitted.WithLabelValues("OPEN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(b.SignalsEmitted.WithLabelValues("OPEN")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObserveBatch(true)
		m.ObserveFill()
		m.ObserveSignal("CLOSE")
		m.ObserveSuppressed("malformed")
		m.ObserveEviction("snapshot_evicted")
		m.SetQueueDepth("0xabc", 3)
		m.ObserveDispatch(time.Second, true)
		m.ObserveSenderFailure("feishu")
		m.ObserveReconnect("0xabc")
	})
	assert.Nil(t, m.Registry())
}

func TestHandler_ServesRegistry(t *testing.T) {
	m := New("test")
	m.ObserveBatch(false)
	m.ObserveDispatch(20*time.Millisecond, true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `test_pipeline_batches_received_total{snapshot="false"} 1`), body)
	assert.True(t, strings.Contains(body, "test_pipeline_dispatch_failures_total 1"), body)
}
