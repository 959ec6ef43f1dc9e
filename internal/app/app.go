// Package app собирает сервис маркетплейса из конфигурации и запускает его.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/vladislavdragonenkov/marketplace/internal/config"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

const (
	serviceName       = "marketplace"
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 5 * time.Second
	healthTimeout     = 2 * time.Second
)

// Run поднимает HTTP API, служебный gRPC, метрики и outbox worker и блокируется
// до отмены ctx или падения одного из серверов.
func Run(ctx context.Context, cfg config.Config) error {
	logger := log.WithField("component", "app")
	logger.WithFields(version.Fields()).Info("starting marketplace")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	producer, err := initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		producer = nil
	}
	defer closeKafka(producer, logger)

	registerer := prometheus.DefaultRegisterer
	api, err := newAPIServer(cfg, deps.store, registerer, logger)
	if err != nil {
		return err
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewPingChecker("storage", deps.pinger, healthTimeout, true))
	if producer != nil {
		healthHandler.RegisterChecker("kafka", healthcheck.NewPingChecker("kafka", producer, healthTimeout, false))
	}

	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc %s: %w", cfg.GRPCAddr, err)
	}
	apiLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http %s: %w", cfg.HTTPAddr, err)
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	workerDone := startOutboxWorker(workerCtx, cfg, deps.outboxRepo, producer, registerer, logger)
	cleanupDone := startOutboxCleanup(workerCtx, cfg, deps.outboxRepo, registerer, logger)

	grpcServer, healthServer := newGRPCServer(registerer, logger)
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	apiSrv := &http.Server{Handler: api.Handler(), ReadHeaderTimeout: readHeaderTimeout}

	errCh := make(chan error, 2)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", apiLis.Addr())
		if err := apiSrv.Serve(apiLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем сервисы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server failed, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	markNotServing(healthServer)
	if err := apiSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http api shutdown with error")
	}
	stopGRPC(shutdownCtx, grpcServer, logger)

	stopWorker()
	for _, done := range []<-chan struct{}{workerDone, cleanupDone} {
		select {
		case <-done:
		case <-shutdownCtx.Done():
			logger.Warn("outbox workers did not stop in time")
		}
	}

	shutdownHTTP(metricsSrv, logger)
	logger.Info("marketplace stopped")
	return runErr
}

// startOutboxWorker запускает relay outbox -> Kafka. Без Kafka или outbox
// возвращает уже закрытый канал.
func startOutboxWorker(
	ctx context.Context,
	cfg config.Config,
	repo domain.OutboxRepository,
	producer *kafka.Producer,
	registerer prometheus.Registerer,
	logger *log.Entry,
) <-chan struct{} {
	done := make(chan struct{})
	if producer == nil || repo == nil {
		close(done)
		return done
	}

	worker := outbox.NewWorker(repo, kafka.NewOutboxPublisher(producer, cfg.KafkaPurchaseTopic),
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithDLQPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)),
		outbox.WithMetrics(metrics.NewOutboxMetricsWithRegisterer(registerer)),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
	)
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// startOutboxCleanup запускает удаление отправленных сообщений старше
// OutboxRetention, если хранилище это поддерживает.
func startOutboxCleanup(
	ctx context.Context,
	cfg config.Config,
	repo domain.OutboxRepository,
	registerer prometheus.Registerer,
	logger *log.Entry,
) <-chan struct{} {
	done := make(chan struct{})
	purger, ok := repo.(domain.OutboxPurger)
	if !ok || cfg.OutboxRetention <= 0 {
		close(done)
		return done
	}

	worker := outbox.NewCleanupWorker(purger,
		outbox.WithCleanupLogger(logger.WithField("component", "outbox-cleanup")),
		outbox.WithCleanupMetrics(metrics.NewOutboxMetricsWithRegisterer(registerer)),
		outbox.WithCleanupInterval(cfg.OutboxCleanupInterval),
		outbox.WithRetention(cfg.OutboxRetention),
	)
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()
	return done
}

// stopGRPC ждёт GracefulStop до дедлайна ctx, затем останавливает принудительно.
func stopGRPC(ctx context.Context, server *grpc.Server, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus и health-пробы.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: readHeaderTimeout}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez", addr, addr)
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
