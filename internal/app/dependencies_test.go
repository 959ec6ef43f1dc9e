package app

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/config"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/purchase"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger.WithField("component", "test")
}

func postgresTestDSN() string {
	for _, key := range []string{"MARKETPLACE_POSTGRES_TEST_DSN", "POSTGRES_DSN"} {
		if dsn := strings.TrimSpace(os.Getenv(key)); dsn != "" {
			return dsn
		}
	}
	return ""
}

func seedCatalog(t *testing.T, store domain.Store, stock *int) (domain.User, domain.Product) {
	t.Helper()
	ctx := context.Background()

	user, err := store.InsertUser(ctx, domain.User{
		Username:     "app-buyer",
		Email:        "app-buyer@example.com",
		PasswordHash: []byte{1},
		PasswordSalt: []byte{2},
	})
	require.NoError(t, err)
	vendor, err := store.CreateVendor(ctx, domain.Vendor{Name: "Soweto Crafts", CompanyReg: "2019/123456/07"})
	require.NoError(t, err)
	product, err := store.CreateProduct(ctx, domain.Product{
		VendorID: vendor.ID,
		Stock:    stock,
		Price:    decimal.RequireFromString("7.25"),
		Location: "Johannesburg",
	})
	require.NoError(t, err)
	return user, product
}

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), config.Default(), testLogger())
	require.NoError(t, err)

	assert.NotNil(t, deps.store)
	assert.Nil(t, deps.outboxRepo, "без Kafka события не копятся")
	assert.NoError(t, deps.pinger.Ping(context.Background()))
	assert.NoError(t, deps.close())
}

func TestInitRuntimeDependencies_MemoryWithKafkaQueuesPurchaseEvents(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.KafkaBrokers = []string{"localhost:9092"}
	deps, err := initRuntimeDependencies(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	require.NotNil(t, deps.outboxRepo)

	stock := 3
	user, product := seedCatalog(t, deps.store, &stock)
	_, err = purchase.NewProcessor(deps.store, purchase.WithLogger(testLogger())).Purchase(context.Background(), purchase.Request{
		UserID:    user.ID,
		ProductID: product.ID,
		Quantity:  2,
	})
	require.NoError(t, err)

	stats, err := deps.outboxRepo.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingCount)
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.StorageDriver = config.StorageDriverPostgres

	_, err := initRuntimeDependencies(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.EnvPostgresDSN)
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.StorageDriver = "sqlite"

	_, err := initRuntimeDependencies(context.Background(), cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestInitRuntimeDependencies_Postgres(t *testing.T) {
	dsn := postgresTestDSN()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := config.Default()
	cfg.StorageDriver = config.StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.JWTSecret = "x"

	deps, err := initRuntimeDependencies(context.Background(), cfg, testLogger())
	if err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}
	t.Cleanup(func() { _ = deps.close() })

	assert.NotNil(t, deps.store)
	assert.Nil(t, deps.outboxRepo, "без Kafka события не копятся")
	assert.NoError(t, deps.pinger.Ping(context.Background()))
}

func TestInitRuntimeDependencies_PostgresWithKafka(t *testing.T) {
	dsn := postgresTestDSN()
	if dsn == "" {
		t.Skip("postgres dsn is not available")
	}

	cfg := config.Default()
	cfg.StorageDriver = config.StorageDriverPostgres
	cfg.PostgresDSN = dsn
	cfg.JWTSecret = "x"
	cfg.KafkaBrokers = []string{"localhost:9092"}

	deps, err := initRuntimeDependencies(context.Background(), cfg, testLogger())
	if err != nil {
		t.Skipf("postgres is not reachable: %v", err)
	}
	t.Cleanup(func() { _ = deps.close() })

	assert.NotNil(t, deps.outboxRepo)
}
