// Package purchase проводит покупку: проверяет покупателя и товар, соблюдает
// инвариант остатка и атомарно фиксирует неизменяемую запись о покупке.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

const (
	defaultMaxAttempts    = 5
	defaultRetryBaseDelay = 5 * time.Millisecond
	maxRetryDelay         = 250 * time.Millisecond
)

// Store описывает часть хранилища, нужную для покупки.
type Store interface {
	GetUser(ctx context.Context, id int64) (domain.User, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	CommitPurchase(ctx context.Context, commit domain.PurchaseCommit) (domain.Purchase, int64, error)
}

// Recorder принимает метрики обработки покупок.
type Recorder interface {
	RecordAttempt()
	RecordConflict()
	RecordOutcome(outcome string, quantity int, duration time.Duration)
}

// Request описывает входящий запрос на покупку.
type Request struct {
	UserID    int64
	ProductID int64
	Quantity  int
}

// Options задаёт параметры Processor.
type Options struct {
	Logger         *log.Entry
	Metrics        Recorder
	MaxAttempts    int
	RetryBaseDelay time.Duration
	Clock          func() time.Time
}

// Option настраивает Processor.
type Option func(*Options)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(o *Options) { o.Logger = logger }
}

// WithMetrics задаёт приёмник метрик.
func WithMetrics(recorder Recorder) Option {
	return func(o *Options) { o.Metrics = recorder }
}

// WithMaxAttempts задаёт число попыток условной записи до ErrConcurrencyExhausted.
func WithMaxAttempts(n int) Option {
	return func(o *Options) { o.MaxAttempts = n }
}

// WithRetryBaseDelay задаёт базовую задержку экспоненциального backoff между попытками.
func WithRetryBaseDelay(d time.Duration) Option {
	return func(o *Options) { o.RetryBaseDelay = d }
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) { o.Clock = clock }
}

// Processor проводит покупки с optimistic concurrency.
// Не кэширует пользователей и товары между запросами; безопасен для конкурентного использования.
type Processor struct {
	store          Store
	logger         *log.Entry
	metrics        Recorder
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// NewProcessor создаёт Processor поверх хранилища.
func NewProcessor(store Store, options ...Option) *Processor {
	opts := Options{
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "purchase-processor")
	}
	if opts.Metrics == nil {
		opts.Metrics = noopRecorder{}
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Processor{
		store:          store,
		logger:         opts.Logger,
		metrics:        opts.Metrics,
		maxAttempts:    opts.MaxAttempts,
		retryBaseDelay: opts.RetryBaseDelay,
		now:            opts.Clock,
	}
}

// Purchase проводит одну покупку.
//
// Проверки в фиксированном порядке: количество, покупатель, товар, остаток.
// Конфликт версий повторяет цикл с чтения товара не более maxAttempts раз.
// Возвращает ошибки из таксономии domain: ErrInvalidQuantity, ErrUserNotFound,
// ErrProductNotFound, ErrInsufficientStock, ErrConcurrencyExhausted, ErrInternal.
func (p *Processor) Purchase(ctx context.Context, req Request) (domain.Purchase, error) {
	started := time.Now()
	purchase, attempts, err := p.purchase(ctx, req)
	outcome := Outcome(err)
	p.metrics.RecordOutcome(outcome, req.Quantity, time.Since(started))

	entry := p.logger.WithFields(log.Fields{
		"user_id":    req.UserID,
		"product_id": req.ProductID,
		"quantity":   req.Quantity,
		"attempts":   attempts,
		"outcome":    outcome,
	})
	switch {
	case err == nil:
		entry.WithField("purchase_id", purchase.ID).Info("purchase committed")
	case errors.Is(err, domain.ErrInternal):
		entry.WithError(err).Error("purchase failed")
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		entry.Warn("purchase gave up under contention")
	default:
		entry.Debug("purchase rejected")
	}
	return purchase, err
}

func (p *Processor) purchase(ctx context.Context, req Request) (domain.Purchase, int, error) {
	if req.Quantity < 1 {
		return domain.Purchase{}, 0, domain.ErrInvalidQuantity
	}

	user, err := p.store.GetUser(ctx, req.UserID)
	if err != nil {
		return domain.Purchase{}, 0, classify(err, "get user")
	}

	for attempt := 1; ; attempt++ {
		product, err := p.store.GetProduct(ctx, req.ProductID)
		if err != nil {
			return domain.Purchase{}, attempt, classify(err, "get product")
		}
		if !product.HasStockFor(req.Quantity) {
			return domain.Purchase{}, attempt, domain.ErrInsufficientStock
		}

		commit := domain.PurchaseCommit{
			ProductID:       product.ID,
			ExpectedVersion: product.Version,
			NewStock:        product.StockAfter(req.Quantity),
			Draft:           domain.NewPurchaseDraft(user.ID, product, req.Quantity, p.now()),
		}

		p.metrics.RecordAttempt()
		purchase, _, err := p.store.CommitPurchase(ctx, commit)
		if err == nil {
			return purchase, attempt, nil
		}
		if !domain.IsVersionConflict(err) {
			return domain.Purchase{}, attempt, classify(err, "commit purchase")
		}

		p.metrics.RecordConflict()
		p.logger.WithFields(log.Fields{
			"product_id": req.ProductID,
			"attempt":    attempt,
			"version":    product.Version,
		}).Debug("product version conflict, retrying")

		if attempt >= p.maxAttempts {
			return domain.Purchase{}, attempt, fmt.Errorf("%w after %d attempts", domain.ErrConcurrencyExhausted, attempt)
		}
		if err := p.wait(ctx, attempt); err != nil {
			return domain.Purchase{}, attempt, fmt.Errorf("%w: wait before retry: %w", domain.ErrInternal, err)
		}
	}
}

// wait выдерживает паузу перед повтором или возвращается раньше при отмене ctx.
func (p *Processor) wait(ctx context.Context, attempt int) error {
	delay := p.retryBackoff(attempt)
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryBackoff — экспоненциальная задержка с jitter в диапазоне [d/2, 3d/2), не выше maxRetryDelay.
func (p *Processor) retryBackoff(attempt int) time.Duration {
	if p.retryBaseDelay <= 0 {
		return 0
	}
	delay := p.retryBaseDelay
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}
	return delay/2 + rand.N(delay)
}

// classify пропускает типизированные исходы и сворачивает прочие сбои в ErrInternal.
func classify(err error, op string) error {
	if domain.IsBusinessError(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrInternal, op, err)
}

// Outcome возвращает значение label outcome для метрик и логов.
func Outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, domain.ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, domain.ErrUserNotFound):
		return "user_not_found"
	case errors.Is(err, domain.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		return "concurrency_exhausted"
	default:
		return metrics.OutcomeInternal
	}
}

type noopRecorder struct{}

func (noopRecorder) RecordAttempt()                           {}
func (noopRecorder) RecordConflict()                          {}
func (noopRecorder) RecordOutcome(string, int, time.Duration) {}

var _ Recorder = (*metrics.PurchaseMetrics)(nil)
