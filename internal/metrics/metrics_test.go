package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Observers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, func() float64 { return 3 })

	m.ObserveIngest("format1", 5, 2)
	m.ObserveIngest("format1", 1, 0)
	m.ObserveAlarms(2, 3)
	m.ObserveQuery("/api/alarms", http.StatusOK, 10*time.Millisecond)

	assert.Equal(t, 6.0, testutil.ToFloat64(m.TradesIngested.WithLabelValues("format1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesRejected.WithLabelValues("format1")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AccountsInBreach))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ViolationsDetected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("/api/alarms", "OK")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.AlertQueueDepth))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry(), nil)
		NewMetrics(prometheus.NewRegistry(), nil)
	})
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func healthz(t *testing.T, h *HealthStatus) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthStatus(t *testing.T) {
	h := NewHealthStatus("sqlite")

	h.CheckStore(context.Background(), pinger{})
	code, body := healthz(t, h)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "sqlite", body["store_driver"])
	assert.Equal(t, false, body["redis_enabled"])

	h.CheckStore(context.Background(), pinger{err: errors.New("locked")})
	code, body = healthz(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
}

func TestServer_ExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, nil)
	m.AlertsEnqueued.Inc()

	h := NewHealthStatus("sqlite")
	h.CheckStore(context.Background(), pinger{})
	srv := httptest.NewServer(NewServer(":0", h, reg).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "clearinghouse_alerts_enqueued_total 1")

	resp2, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
}
