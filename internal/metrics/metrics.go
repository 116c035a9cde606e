// Package metrics exposes the clearinghouse's Prometheus collectors and the
// dependency health endpoint.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "clearinghouse"

// Metrics holds all Prometheus metrics for the clearinghouse.
type Metrics struct {
	// Queries
	QueriesTotal  *prometheus.CounterVec   // labels: endpoint, status
	QueryDuration *prometheus.HistogramVec // labels: endpoint

	// Ingestion
	TradesIngested *prometheus.CounterVec // labels: format
	TradesRejected *prometheus.CounterVec // labels: format

	// Risk
	ViolationsDetected prometheus.Counter // one per violating (account, ticker)
	AccountsInBreach   prometheus.Gauge   // violators in the most recent alarm run

	// Alert delivery
	AlertsEnqueued  prometheus.Counter
	AlertsDropped   prometheus.Counter
	AlertsDelivered *prometheus.CounterVec // labels: channel
	AlertsFailed    *prometheus.CounterVec // labels: channel
	AlertQueueDepth prometheus.GaugeFunc

	// Live stream
	StreamClients prometheus.Gauge

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedAlerts      prometheus.Counter

	// Sweep
	SweepRuns *prometheus.CounterVec // labels: result=ok|error
}

// NewMetrics creates every collector and registers it with reg.
// queueDepth reports the dispatcher backlog; nil reports zero.
func NewMetrics(reg prometheus.Registerer, queueDepth func() float64) *Metrics {
	if queueDepth == nil {
		queueDepth = func() float64 { return 0 }
	}
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "API queries served (by endpoint and HTTP status)",
		}, []string{"endpoint", "status"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "API query latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"endpoint"}),

		TradesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_ingested_total",
			Help:      "Trades accepted and stored (by file format)",
		}, []string{"format"}),
		TradesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_rejected_total",
			Help:      "Trade rows rejected during ingestion (by file format)",
		}, []string{"format"}),

		ViolationsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_detected_total",
			Help:      "Instrument positions found above the concentration limit",
		}),
		AccountsInBreach: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accounts_in_breach",
			Help:      "Accounts with at least one violation in the latest alarm run",
		}),

		AlertsEnqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_enqueued_total",
			Help:      "Alerts accepted onto the dispatch queue",
		}),
		AlertsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_dropped_total",
			Help:      "Alerts dropped because the dispatch queue was full or closed",
		}),
		AlertsDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_delivered_total",
			Help:      "Alerts delivered (by channel)",
		}, []string{"channel"}),
		AlertsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_failed_total",
			Help:      "Alert deliveries that failed or panicked (by channel)",
		}, []string{"channel"}),
		AlertQueueDepth: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alert_queue_depth",
			Help:      "Alerts waiting for delivery",
		}, queueDepth),

		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected alert stream WebSocket clients",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_state",
			Help:      "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_circuit_breaker_trips_total",
			Help:      "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redis_buffered_alerts_total",
			Help:      "Alerts buffered locally while the Redis circuit breaker was open",
		}),

		SweepRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Scheduled alarm sweeps (by result)",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.QueriesTotal,
		m.QueryDuration,
		m.TradesIngested,
		m.TradesRejected,
		m.ViolationsDetected,
		m.AccountsInBreach,
		m.AlertsEnqueued,
		m.AlertsDropped,
		m.AlertsDelivered,
		m.AlertsFailed,
		m.AlertQueueDepth,
		m.StreamClients,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedAlerts,
		m.SweepRuns,
	)

	return m
}

// ObserveQuery records one API query.
func (m *Metrics) ObserveQuery(endpoint string, status int, d time.Duration) {
	m.QueriesTotal.WithLabelValues(endpoint, http.StatusText(status)).Inc()
	m.QueryDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveIngest records one ingestion result.
func (m *Metrics) ObserveIngest(format string, accepted, rejected int) {
	m.TradesIngested.WithLabelValues(format).Add(float64(accepted))
	m.TradesRejected.WithLabelValues(format).Add(float64(rejected))
}

// ObserveAlarms records one alarm run.
func (m *Metrics) ObserveAlarms(accounts, violations int) {
	m.AccountsInBreach.Set(float64(accounts))
	m.ViolationsDetected.Add(float64(violations))
}

// Pinger is a dependency that can be probed for liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus tracks dependency health for /healthz.
type HealthStatus struct {
	mu sync.RWMutex

	StoreDriver    string
	StoreOK        bool
	StoreLatencyMs float64

	RedisEnabled   bool
	RedisConnected bool
	RedisLatencyMs float64

	LastCheckAt time.Time
	StartedAt   time.Time
}

// NewHealthStatus returns a health status for the given store driver.
func NewHealthStatus(storeDriver string) *HealthStatus {
	return &HealthStatus{
		StoreDriver: storeDriver,
		StartedAt:   time.Now(),
	}
}

// CheckStore pings the trade store and records latency + health.
func (h *HealthStatus) CheckStore(ctx context.Context, store Pinger) {
	start := time.Now()
	err := store.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker probes the dependencies immediately and then every
// interval until ctx is cancelled. rdb may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, store Pinger, rdb *goredis.Client, interval time.Duration) {
	probe := func() {
		probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if store != nil {
			h.CheckStore(probeCtx, store)
		}
		if rdb != nil {
			h.CheckRedis(probeCtx, rdb)
		}
	}
	probe()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	switch {
	case !h.StoreOK:
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case h.RedisEnabled && !h.RedisConnected:
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	status := struct {
		Status         string  `json:"status"`
		Uptime         string  `json:"uptime"`
		StoreDriver    string  `json:"store_driver"`
		StoreOK        bool    `json:"store_ok"`
		StoreLatencyMs float64 `json:"store_latency_ms"`
		RedisEnabled   bool    `json:"redis_enabled"`
		RedisConnected bool    `json:"redis_connected"`
		RedisLatencyMs float64 `json:"redis_latency_ms"`
		LastCheckAt    string  `json:"last_check_at"`
	}{
		Status:         overallStatus,
		Uptime:         time.Since(h.StartedAt).Round(time.Second).String(),
		StoreDriver:    h.StoreDriver,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		RedisEnabled:   h.RedisEnabled,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
		LastCheckAt:    h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server backed by gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("server listening", "component", "metrics", "addr", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "component", "metrics", "error", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
