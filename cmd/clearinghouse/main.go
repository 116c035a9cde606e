// Command clearinghouse serves the blotter, positions and alarms API,
// ingests trade files and delivers concentration-limit alerts.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-clearinghouse/config"
	"portfolio-clearinghouse/internal/api"
	"portfolio-clearinghouse/internal/gateway"
	"portfolio-clearinghouse/internal/ingest"
	"portfolio-clearinghouse/internal/logger"
	"portfolio-clearinghouse/internal/metrics"
	"portfolio-clearinghouse/internal/model"
	"portfolio-clearinghouse/internal/notification"
	"portfolio-clearinghouse/internal/portfolio"
	"portfolio-clearinghouse/internal/store/postgres"
	redisstore "portfolio-clearinghouse/internal/store/redis"
	"portfolio-clearinghouse/internal/store/sqlite"
	"portfolio-clearinghouse/internal/sweep"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	replaySize      = 256
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger.Init("clearinghouse", logger.ParseLevel(cfg.LogLevel))
	slog.Info("starting",
		"store", cfg.StoreDriver,
		"http_addr", cfg.HTTPAddr,
		"concentration_limit_pct", cfg.ConcentrationLimitPct)

	// ---- Setup context for graceful shutdown ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Trade store ----
	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("store init failed", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("trade store ready", "driver", cfg.StoreDriver)

	// ---- Metrics & health ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var dispatcher *notification.Dispatcher
	prom := metrics.NewMetrics(reg, func() float64 {
		if dispatcher == nil {
			return 0
		}
		return float64(dispatcher.Pending())
	})
	health := metrics.NewHealthStatus(cfg.StoreDriver)

	// ---- Live alert stream ----
	hub := gateway.NewHub(replaySize)
	hub.OnClientCount = func(n int) { prom.StreamClients.Set(float64(n)) }

	// ---- Alert channels ----
	notifiers := []notification.Notifier{notification.NewLogNotifier(slog.Default())}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramEnabled() {
		notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	var kafkaAlerts *notification.KafkaNotifier
	if cfg.KafkaEnabled() && cfg.KafkaAlertTopic != "" {
		kafkaAlerts = notification.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaAlertTopic)
		notifiers = append(notifiers, kafkaAlerts)
	}

	var (
		rdb         *goredis.Client
		redisWriter *redisstore.Writer
	)
	if cfg.RedisAddr != "" {
		redisWriter = setupRedis(ctx, cfg, hub, prom, &notifiers)
	}
	if redisWriter != nil {
		rdb = redisWriter.Client()
	} else {
		// Without Redis the hub is fed directly by the dispatcher.
		notifiers = append(notifiers, hub)
	}

	dispatcher = notification.NewDispatcher(notification.DispatcherConfig{
		QueueSize:   cfg.AlertQueueSize,
		Workers:     cfg.AlertWorkers,
		SendTimeout: cfg.AlertSendTimeout,
	}, notifiers...)
	dispatcher.OnEnqueue = func() { prom.AlertsEnqueued.Inc() }
	dispatcher.OnDrop = func() { prom.AlertsDropped.Inc() }
	dispatcher.OnDelivered = func(ch string) { prom.AlertsDelivered.WithLabelValues(ch).Inc() }
	dispatcher.OnFailed = func(ch string) { prom.AlertsFailed.WithLabelValues(ch).Inc() }
	dispatcher.Start()

	// ---- Engine & ingestion ----
	limits := portfolio.RiskLimits{MaxConcentrationPct: cfg.ConcentrationLimit()}
	engine := portfolio.NewEngine(store, portfolio.NewDetector(limits, dispatcher))

	ingestSvc := ingest.NewService(store)
	ingestSvc.OnIngest = func(format model.FileFormat, accepted, rejected int) {
		prom.ObserveIngest(string(format), accepted, rejected)
	}

	var consumer *ingest.KafkaConsumer
	if cfg.KafkaEnabled() && cfg.KafkaTradeTopic != "" {
		consumer = ingest.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaTradeTopic, ingestSvc)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				slog.Error("trade consumer stopped", "component", "kafka", "error", err)
			}
		}()
	}

	// ---- Scheduled alarm sweep ----
	var sweeper *sweep.Sweeper
	if cfg.SweepCron != "" {
		sweeper, err = sweep.New(cfg.SweepCron, engine)
		if err != nil {
			slog.Error("sweep init failed", "error", err)
			os.Exit(1)
		}
		sweeper.OnRun = func(violators int, err error) {
			if err != nil {
				prom.SweepRuns.WithLabelValues("error").Inc()
				return
			}
			prom.SweepRuns.WithLabelValues("ok").Inc()
			prom.AccountsInBreach.Set(float64(violators))
		}
		sweeper.Start()
	}

	// ---- Metrics server & liveness checks ----
	health.StartLivenessChecker(ctx, store, rdb, 10*time.Second)
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, reg)
	metricsSrv.Start()

	// ---- API server ----
	deps := api.Deps{
		Engine:  engine,
		Ingest:  ingestSvc,
		Store:   store,
		Stream:  http.HandlerFunc(hub.ServeWS),
		Auth:    api.NewAuthenticator(cfg.APIKey, cfg.APITOTPSecret),
		Metrics: prom,
	}
	if redisWriter != nil {
		deps.Alerts = redisWriter
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("server listening", "component", "api", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "component", "api", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api shutdown", "error", err)
	}
	if sweeper != nil {
		sweeper.Stop()
	}
	if consumer != nil {
		consumer.Close()
	}
	hub.Close()
	// Drain queued alerts before closing the channels they go to.
	dispatcher.Close()
	if kafkaAlerts != nil {
		kafkaAlerts.Close()
	}
	if rdb != nil {
		rdb.Close()
	}
	metricsSrv.Stop(shutdownCtx)
	slog.Info("stopped")
}

func openStore(ctx context.Context, cfg *config.Config) (model.TradeStore, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.DatabaseURL)
	default:
		return sqlite.Open(cfg.SQLitePath)
	}
}

// setupRedis wires the Redis alert channel and feeds the hub from PubSub.
// It returns nil when Redis is unreachable; the server then runs without it.
func setupRedis(ctx context.Context, cfg *config.Config, hub *gateway.Hub, prom *metrics.Metrics, notifiers *[]notification.Notifier) *redisstore.Writer {
	w, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		slog.Warn("redis unavailable, continuing without it", "component", "redis", "error", err)
		return nil
	}

	cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
	cb.OnStateChange = func(from, to redisstore.State) {
		prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			prom.RedisCircuitBreakerTrips.Inc()
		}
		slog.Warn("circuit breaker state change", "component", "redis", "from", from.String(), "to", to.String())
	}
	buffered := redisstore.NewBufferedPublisher(w, cb, 10000)
	buffered.OnBuffer = func() { prom.RedisBufferedAlerts.Inc() }
	*notifiers = append(*notifiers, notification.NewRedisNotifier(buffered))

	if err := gateway.SeedFrom(ctx, hub, w, replaySize); err != nil {
		slog.Warn("replay seed failed", "component", "gateway", "error", err)
	}
	go gateway.NewPubSubRouter(w.Client(), hub).Run(ctx)
	return w
}
