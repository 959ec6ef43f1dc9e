package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/config"
	"github.com/vladislavdragonenkov/marketplace/internal/credential"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/auth"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/purchase"
	"github.com/vladislavdragonenkov/marketplace/internal/service/registration"
	"github.com/vladislavdragonenkov/marketplace/internal/transport/httpapi"
)

// newAPIServer собирает сервисы поверх хранилища и публикует их по HTTP.
func newAPIServer(cfg config.Config, store domain.Store, registerer prometheus.Registerer, logger *log.Entry) (*httpapi.Server, error) {
	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return nil, fmt.Errorf("token issuer: %w", err)
	}

	creds := credential.NewService(credential.WithIterations(cfg.PBKDF2Iterations))
	purchaseMetrics := metrics.NewPurchaseMetricsWithRegisterer(registerer)
	authMetrics := metrics.NewAuthMetricsWithRegisterer(registerer)

	processor := purchase.NewProcessor(store,
		purchase.WithLogger(logger.WithField("component", "purchase-processor")),
		purchase.WithMetrics(purchaseMetrics),
		purchase.WithMaxAttempts(cfg.PurchaseMaxAttempts),
		purchase.WithRetryBaseDelay(cfg.PurchaseRetryBaseDelay),
	)
	registrar := registration.NewService(store, creds,
		registration.WithLogger(logger.WithField("component", "registration")),
		registration.WithMetrics(authMetrics),
	)
	authService := auth.NewService(store, creds, tokens,
		auth.WithLogger(logger.WithField("component", "auth")),
		auth.WithMetrics(authMetrics),
	)

	return httpapi.NewServer(httpapi.Deps{
		Purchases:    processor,
		History:      store,
		Registration: registrar,
		Auth:         authService,
		Catalog:      catalog.NewService(store, logger.WithField("component", "catalog")),
		Logger:       logger.WithField("component", "http"),
	}), nil
}
