package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/ims/internal/health"
	"github.com/vladislavdragonenkov/ims/internal/service/outbox"
	"github.com/vladislavdragonenkov/ims/internal/service/sweeper"
	"github.com/vladislavdragonenkov/ims/internal/version"
)

// Config описывает настройки запуска сервиса.
type Config struct {
	MetricsAddr string
	// PostgresDSN пустой — репозитории работают в памяти (dev-режим).
	PostgresDSN string
	// KafkaBrokers пустой — алерты пишутся в лог, outbox-воркер не запускается.
	KafkaBrokers string

	SweepInterval      time.Duration
	WarningWindow      time.Duration
	OutboxPollInterval time.Duration
}

// DefaultConfig возвращает базовые настройки.
func DefaultConfig() Config {
	return Config{
		MetricsAddr:        ":9090",
		SweepInterval:      5 * time.Minute,
		WarningWindow:      30 * time.Minute,
		OutboxPollInterval: time.Second,
	}
}

// ReadConfig читает конфигурацию из переменных окружения поверх значений по умолчанию.
func ReadConfig() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("IMS_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.PostgresDSN = os.Getenv("IMS_POSTGRES_DSN")
	cfg.KafkaBrokers = os.Getenv("IMS_KAFKA_BROKERS")
	if v := os.Getenv("IMS_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.SweepInterval = d
		}
	}
	if v := os.Getenv("IMS_WARNING_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.WarningWindow = d
		}
	}
	if v := os.Getenv("IMS_OUTBOX_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.OutboxPollInterval = d
		}
	}
	return cfg
}

// Run собирает зависимости и запускает фоновые воркеры и HTTP-сервер
// метрик/health. Блокируется до отмены контекста.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	deps, err := NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close(logger)

	healthHandler := healthcheck.NewHandler(version.String())
	registerHealthChecks(ctx, healthHandler, deps)

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	var wg sync.WaitGroup

	sweepWorker := sweeper.NewWorker(
		deps.ReservationService,
		deps.InventoryRepo,
		deps.Notifier,
		sweeper.WithLogger(logger.WithField("component", "sweeper")),
		sweeper.WithInterval(cfg.SweepInterval),
		sweeper.WithWarningWindow(cfg.WarningWindow),
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweepWorker.Run(ctx)
	}()

	// Outbox-воркер имеет смысл только при настроенном Kafka.
	if deps.KafkaProducer != nil {
		outboxWorker := outbox.NewWorker(
			deps.OutboxRepo,
			deps.AlertPublisher,
			outbox.WithLogger(logger.WithField("component", "outbox-worker")),
			outbox.WithDLQPublisher(deps.DLQPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			outboxWorker.Run(ctx)
		}()
	}

	logger.WithFields(log.Fields{
		"metrics_addr": cfg.MetricsAddr,
		"storage":      deps.StorageKind,
		"kafka":        deps.KafkaProducer != nil,
	}).Info("сервис инвентаря запущен")

	<-ctx.Done()
	logger.Info("получен сигнал остановки, завершаем воркеры")

	wg.Wait()
	shutdownHTTP(metricsSrv, logger)

	return ctx.Err()
}

func registerHealthChecks(ctx context.Context, handler *healthcheck.Handler, deps *Dependencies) {
	if deps.Store != nil {
		store := deps.Store
		handler.RegisterFunc("postgres", func() error {
			checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return store.Ping(checkCtx)
		})
	}
	if deps.OutboxRepo != nil && deps.KafkaProducer != nil {
		repo := deps.OutboxRepo
		handler.RegisterFunc("outbox", func() error {
			_, err := repo.Stats()
			return err
		})
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health-проб.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
