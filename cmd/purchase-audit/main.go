// Команда purchase-audit читает события покупок из Kafka, сверяет суммы
// и остатки и считает метрики. Непригодные сообщения уходят в DLQ.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/config"
	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

const (
	defaultGroupID     = "marketplace-purchase-audit"
	defaultMetricsAddr = ":9091"
	defaultMaxRetries  = 3
	shutdownTimeout    = 5 * time.Second
)

type auditConfig struct {
	brokers     []string
	topic       string
	dlqTopic    string
	groupID     string
	metricsAddr string
	maxRetries  int
	logLevel    string
}

// consumerRunner покрывает используемую часть kafka.Consumer.
type consumerRunner interface {
	Start(ctx context.Context) error
	Stop() error
}

// newConsumer подменяется в тестах.
var newConsumer = func(cfg auditConfig, handler kafka.MessageHandler) (consumerRunner, func() error, error) {
	producer, err := kafka.NewProducer(cfg.brokers)
	if err != nil {
		return nil, nil, fmt.Errorf("create dlq producer: %w", err)
	}
	consumer, err := kafka.NewConsumerWithDLQ(cfg.brokers, cfg.groupID, []string{cfg.topic}, handler, producer, cfg.dlqTopic, cfg.maxRetries)
	if err != nil {
		_ = producer.Close()
		return nil, nil, err
	}
	return consumer, producer.Close, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := config.LoadEnvFiles(".env"); err != nil {
		log.WithError(err).Fatal("load .env")
	}
	cfg, err := readConfig(os.Args[1:], os.Stderr, os.Getenv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.WithError(err).Fatal("invalid configuration")
	}
	level, err := log.ParseLevel(cfg.logLevel)
	if err != nil {
		log.WithError(err).Fatal("invalid log level")
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, prometheus.DefaultRegisterer); err != nil {
		log.WithError(err).Fatal("purchase audit failed")
	}
}

func readConfig(args []string, output io.Writer, getenv func(string) string) (auditConfig, error) {
	var (
		brokersRaw string
		cfg        auditConfig
	)

	fs := flag.NewFlagSet("purchase-audit", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&brokersRaw, "brokers", getenv(config.EnvKafkaBrokers), "Kafka brokers as comma-separated list")
	fs.StringVar(&cfg.topic, "topic", envOr(getenv, config.EnvKafkaPurchaseTopic, kafka.TopicPurchaseEvents), "purchase events topic")
	fs.StringVar(&cfg.dlqTopic, "dlq-topic", envOr(getenv, config.EnvKafkaDLQTopic, kafka.TopicDeadLetterQueue), "dead letter topic")
	fs.StringVar(&cfg.groupID, "group", defaultGroupID, "consumer group id")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", defaultMetricsAddr, "address for /metrics and /livez; empty disables")
	fs.IntVar(&cfg.maxRetries, "max-retries", defaultMaxRetries, "handler attempts before a message goes to DLQ")
	fs.StringVar(&cfg.logLevel, "log-level", envOr(getenv, config.EnvLogLevel, "info"), "log level")
	if err := fs.Parse(args); err != nil {
		return auditConfig{}, err
	}

	cfg.brokers = config.SplitList(brokersRaw)
	switch {
	case len(cfg.brokers) == 0:
		return auditConfig{}, fmt.Errorf("kafka brokers are required (-brokers or %s)", config.EnvKafkaBrokers)
	case strings.TrimSpace(cfg.topic) == "":
		return auditConfig{}, errors.New("topic is required")
	case strings.TrimSpace(cfg.dlqTopic) == "":
		return auditConfig{}, errors.New("dlq-topic is required")
	case cfg.topic == cfg.dlqTopic:
		return auditConfig{}, errors.New("topic and dlq-topic must differ")
	case strings.TrimSpace(cfg.groupID) == "":
		return auditConfig{}, errors.New("group is required")
	case cfg.maxRetries <= 0:
		return auditConfig{}, errors.New("max-retries must be > 0")
	}
	return cfg, nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return fallback
}

// run блокируется до отмены ctx.
func run(ctx context.Context, cfg auditConfig, registerer prometheus.Registerer) error {
	logger := log.WithFields(log.Fields{
		"component": "purchase-audit",
		"topic":     cfg.topic,
		"group":     cfg.groupID,
	})

	audit := newAuditor(metrics.NewAuditMetricsWithRegisterer(registerer), logger, defaultSeenCapacity)
	consumer, closeDeps, err := newConsumer(cfg, audit.Handle)
	if err != nil {
		return err
	}
	defer func() {
		if closeDeps == nil {
			return
		}
		if err := closeDeps(); err != nil {
			logger.WithError(err).Warn("failed to close dlq producer")
		}
	}()

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	metricsSrv := startMetricsServer(cfg.metricsAddr, logger)
	logger.Info("purchase audit started")

	<-ctx.Done()

	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("consumer stop with error")
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics shutdown with error")
		}
	}
	logger.Info("purchase audit stopped")
	return nil
}

func startMetricsServer(addr string, logger *log.Entry) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: shutdownTimeout}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()
	return srv
}
