package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/config"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

// runtimeDependencies хранит хранилище, выбранное конфигурацией.
type runtimeDependencies struct {
	store domain.Store
	// outboxRepo == nil: без Kafka события покупок никуда не ставятся.
	outboxRepo domain.OutboxRepository
	pinger     healthcheck.Pinger
	close      func() error
}

// initRuntimeDependencies открывает хранилище по STORAGE_DRIVER.
func initRuntimeDependencies(ctx context.Context, cfg config.Config, logger *log.Entry) (*runtimeDependencies, error) {
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		var opts []memory.Option
		var outboxRepo domain.OutboxRepository
		if cfg.KafkaEnabled() {
			outboxRepo = memory.NewOutboxRepository()
			opts = append(opts, memory.WithOutbox(outboxRepo))
		}
		store := memory.NewStore(opts...)
		logger.Info("using in-memory storage")
		return &runtimeDependencies{
			store:      store,
			outboxRepo: outboxRepo,
			pinger:     store,
			close:      func() error { return nil },
		}, nil

	case config.StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("%s is required for postgres storage", config.EnvPostgresDSN)
		}
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if cfg.PostgresAutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				return nil, fmt.Errorf("apply migrations: %w", err)
			}
			logger.Info("postgres migrations applied")
		}
		var opts []postgres.RepositoryOption
		var outboxRepo domain.OutboxRepository
		if cfg.KafkaEnabled() {
			outboxRepo = postgres.NewOutboxRepository(pg)
		} else {
			opts = append(opts, postgres.WithoutOutbox())
		}
		logger.Info("using postgres storage")
		return &runtimeDependencies{
			store:      postgres.NewRepository(pg, opts...),
			outboxRepo: outboxRepo,
			pinger:     pg,
			close:      pg.Close,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}
