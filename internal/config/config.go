// Package config читает настройки сервиса из окружения и файла .env.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Имена переменных окружения.
const (
	EnvHTTPAddr               = "HTTP_ADDR"
	EnvGRPCAddr               = "GRPC_ADDR"
	EnvMetricsAddr            = "METRICS_ADDR"
	EnvStorageDriver          = "STORAGE_DRIVER"
	EnvPostgresDSN            = "POSTGRES_DSN"
	EnvPostgresAutoMigrate    = "POSTGRES_AUTO_MIGRATE"
	EnvKafkaBrokers           = "KAFKA_BROKERS"
	EnvKafkaPurchaseTopic     = "KAFKA_PURCHASE_TOPIC"
	EnvKafkaDLQTopic          = "KAFKA_DLQ_TOPIC"
	EnvJWTSecret              = "JWT_SECRET"
	EnvJWTTTL                 = "JWT_TTL"
	EnvPurchaseMaxAttempts    = "PURCHASE_MAX_ATTEMPTS"
	EnvPurchaseRetryBaseDelay = "PURCHASE_RETRY_BASE_DELAY"
	EnvPBKDF2Iterations       = "PBKDF2_ITERATIONS"
	EnvOutboxPollInterval     = "OUTBOX_POLL_INTERVAL"
	EnvOutboxBatchSize        = "OUTBOX_BATCH_SIZE"
	EnvOutboxMaxAttempts      = "OUTBOX_MAX_ATTEMPTS"
	EnvOutboxRetention        = "OUTBOX_RETENTION"
	EnvOutboxCleanupInterval  = "OUTBOX_CLEANUP_INTERVAL"
	EnvLogLevel               = "LOG_LEVEL"
	EnvLogFormat              = "LOG_FORMAT"
)

// StorageDriver выбирает реализацию хранилища.
type StorageDriver string

const (
	StorageDriverMemory   StorageDriver = "memory"
	StorageDriverPostgres StorageDriver = "postgres"
)

// DevJWTSecret используется только с in-memory хранилищем, когда JWT_SECRET не задан.
const DevJWTSecret = "marketplace-dev-secret"

// MinPBKDF2Iterations — нижняя граница числа итераций KDF.
const MinPBKDF2Iterations = 100_000

// Config — настройки запуска сервиса.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       StorageDriver
	PostgresDSN         string
	PostgresAutoMigrate bool

	KafkaBrokers       []string
	KafkaPurchaseTopic string
	KafkaDLQTopic      string

	JWTSecret string
	JWTTTL    time.Duration

	PurchaseMaxAttempts    int
	PurchaseRetryBaseDelay time.Duration
	PBKDF2Iterations       int

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int

	// OutboxRetention задаёт срок хранения отправленных сообщений, 0 отключает очистку.
	OutboxRetention       time.Duration
	OutboxCleanupInterval time.Duration

	LogLevel  string
	LogFormat string
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		HTTPAddr:               ":8080",
		GRPCAddr:               ":50051",
		MetricsAddr:            ":9090",
		StorageDriver:          StorageDriverMemory,
		PostgresAutoMigrate:    true,
		KafkaPurchaseTopic:     "marketplace.purchases",
		KafkaDLQTopic:          "marketplace.purchases.dlq",
		JWTTTL:                 24 * time.Hour,
		PurchaseMaxAttempts:    5,
		PurchaseRetryBaseDelay: 5 * time.Millisecond,
		PBKDF2Iterations:       MinPBKDF2Iterations,
		OutboxPollInterval:     time.Second,
		OutboxBatchSize:        100,
		OutboxMaxAttempts:      3,
		OutboxRetention:        7 * 24 * time.Hour,
		OutboxCleanupInterval:  10 * time.Minute,
		LogLevel:               "info",
		LogFormat:              "text",
	}
}

// KafkaEnabled сообщает, заданы ли брокеры Kafka.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// LookupFunc возвращает значение переменной и признак её наличия.
type LookupFunc func(key string) (string, bool)

// Load подгружает .env (отсутствие файлов не ошибка) и читает окружение процесса.
func Load(files ...string) (Config, error) {
	if err := LoadEnvFiles(files...); err != nil {
		return Config{}, err
	}
	return FromEnv(os.LookupEnv)
}

// LoadEnvFiles переносит переменные из .env-файлов в окружение, не перетирая
// уже заданные. Утилитам, которым не нужна полная конфигурация сервиса,
// хватает его одного.
func LoadEnvFiles(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// FromEnv собирает конфигурацию из lookup поверх значений по умолчанию.
func FromEnv(lookup LookupFunc) (Config, error) {
	cfg := Default()
	p := parser{lookup: lookup}

	p.str(EnvHTTPAddr, &cfg.HTTPAddr)
	p.str(EnvGRPCAddr, &cfg.GRPCAddr)
	p.str(EnvMetricsAddr, &cfg.MetricsAddr)

	var driver string
	p.str(EnvStorageDriver, &driver)
	if driver != "" {
		cfg.StorageDriver = StorageDriver(strings.ToLower(driver))
	}
	p.str(EnvPostgresDSN, &cfg.PostgresDSN)
	p.boolean(EnvPostgresAutoMigrate, &cfg.PostgresAutoMigrate)

	var brokers string
	p.str(EnvKafkaBrokers, &brokers)
	cfg.KafkaBrokers = SplitList(brokers)
	p.str(EnvKafkaPurchaseTopic, &cfg.KafkaPurchaseTopic)
	p.str(EnvKafkaDLQTopic, &cfg.KafkaDLQTopic)

	p.str(EnvJWTSecret, &cfg.JWTSecret)
	p.duration(EnvJWTTTL, &cfg.JWTTTL)

	p.integer(EnvPurchaseMaxAttempts, &cfg.PurchaseMaxAttempts)
	p.duration(EnvPurchaseRetryBaseDelay, &cfg.PurchaseRetryBaseDelay)
	p.integer(EnvPBKDF2Iterations, &cfg.PBKDF2Iterations)

	p.duration(EnvOutboxPollInterval, &cfg.OutboxPollInterval)
	p.integer(EnvOutboxBatchSize, &cfg.OutboxBatchSize)
	p.integer(EnvOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	p.duration(EnvOutboxRetention, &cfg.OutboxRetention)
	p.duration(EnvOutboxCleanupInterval, &cfg.OutboxCleanupInterval)

	p.str(EnvLogLevel, &cfg.LogLevel)
	p.str(EnvLogFormat, &cfg.LogFormat)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if cfg.JWTSecret == "" && cfg.StorageDriver == StorageDriverMemory {
		cfg.JWTSecret = DevJWTSecret
	}

	if err := errors.Join(append(p.errs, cfg.Validate())...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("%s is required for postgres storage", EnvPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported %s %q (use memory|postgres)", EnvStorageDriver, c.StorageDriver))
	}
	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvJWTSecret))
	}
	if c.JWTTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", EnvJWTTTL))
	}
	if c.PurchaseMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%s must be >= 1", EnvPurchaseMaxAttempts))
	}
	if c.PurchaseRetryBaseDelay < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0", EnvPurchaseRetryBaseDelay))
	}
	if c.PBKDF2Iterations < MinPBKDF2Iterations {
		errs = append(errs, fmt.Errorf("%s must be >= %d", EnvPBKDF2Iterations, MinPBKDF2Iterations))
	}
	if c.OutboxPollInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", EnvOutboxPollInterval))
	}
	if c.OutboxBatchSize < 1 {
		errs = append(errs, fmt.Errorf("%s must be >= 1", EnvOutboxBatchSize))
	}
	if c.OutboxMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%s must be >= 1", EnvOutboxMaxAttempts))
	}
	if c.OutboxRetention < 0 {
		errs = append(errs, fmt.Errorf("%s must be >= 0", EnvOutboxRetention))
	}
	if c.OutboxRetention > 0 && c.OutboxCleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("%s must be > 0", EnvOutboxCleanupInterval))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("%s must be text or json", EnvLogFormat))
	}
	if c.KafkaEnabled() && (c.KafkaPurchaseTopic == "" || c.KafkaDLQTopic == "") {
		errs = append(errs, fmt.Errorf("%s and %s are required with kafka", EnvKafkaPurchaseTopic, EnvKafkaDLQTopic))
	}
	return errors.Join(errs...)
}

// SplitList разбирает список через запятую, отбрасывая пустые элементы.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

type parser struct {
	lookup LookupFunc
	errs   []error
}

func (p *parser) value(key string) (string, bool) {
	raw, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	raw = strings.TrimSpace(raw)
	return raw, raw != ""
}

func (p *parser) str(key string, dst *string) {
	if v, ok := p.value(key); ok {
		*dst = v
	}
}

func (p *parser) integer(key string, dst *int) {
	v, ok := p.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a number: %w", key, err))
		return
	}
	*dst = n
}

func (p *parser) duration(key string, dst *time.Duration) {
	v, ok := p.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s must be a duration: %w", key, err))
		return
	}
	*dst = d
}

func (p *parser) boolean(key string, dst *bool) {
	v, ok := p.value(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	default:
		p.errs = append(p.errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
}
