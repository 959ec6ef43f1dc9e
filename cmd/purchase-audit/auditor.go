package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/IBM/sarama"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

// Результаты аудита для метрик.
const (
	resultOK        = "ok"
	resultDuplicate = "duplicate"
	resultInvalid   = "invalid"
	resultMismatch  = "mismatch"
)

const defaultSeenCapacity = 10_000

// eventRecorder принимает метрики аудита.
type eventRecorder interface {
	RecordEvent(result string, units int)
}

// auditor проверяет события purchase.created. Доставка at-least-once,
// поэтому повторы одного purchase_id отмечаются, но не считаются ошибкой.
type auditor struct {
	recorder eventRecorder
	logger   *log.Entry

	mu   sync.Mutex
	seen map[int64]struct{}
	ring []int64
	next int
}

func newAuditor(recorder eventRecorder, logger *log.Entry, capacity int) *auditor {
	if capacity <= 0 {
		capacity = defaultSeenCapacity
	}
	if logger == nil {
		logger = log.WithField("component", "purchase-audit")
	}
	return &auditor{
		recorder: recorder,
		logger:   logger,
		seen:     make(map[int64]struct{}, capacity),
		ring:     make([]int64, 0, capacity),
	}
}

// Handle соответствует kafka.MessageHandler. Ошибка отправляет сообщение
// на повтор, а после исчерпания попыток в DLQ.
func (a *auditor) Handle(_ context.Context, message *sarama.ConsumerMessage) error {
	envelope, payload, err := kafka.ParsePurchaseCreated(message)
	if err != nil {
		a.recorder.RecordEvent(resultInvalid, 0)
		return fmt.Errorf("decode purchase event at %s/%d/%d: %w", message.Topic, message.Partition, message.Offset, err)
	}

	if err := verifyPayload(payload); err != nil {
		a.recorder.RecordEvent(resultMismatch, 0)
		a.logger.WithError(err).WithFields(log.Fields{
			"event_id":    envelope.ID,
			"purchase_id": payload.PurchaseID,
		}).Error("purchase event failed audit")
		return err
	}

	if !a.remember(payload.PurchaseID) {
		a.recorder.RecordEvent(resultDuplicate, 0)
		a.logger.WithField("purchase_id", payload.PurchaseID).Debug("duplicate purchase event")
		return nil
	}

	a.recorder.RecordEvent(resultOK, payload.Quantity)
	fields := log.Fields{
		"event_id":    envelope.ID,
		"purchase_id": payload.PurchaseID,
		"user_id":     payload.UserID,
		"product_id":  payload.ProductID,
		"quantity":    payload.Quantity,
		"total_price": payload.TotalPrice,
	}
	if payload.StockAfter != nil {
		fields["stock_after"] = *payload.StockAfter
	}
	a.logger.WithFields(fields).Info("purchase audited")
	return nil
}

// verifyPayload сверяет итог с ценой и количеством и проверяет остаток.
func verifyPayload(p *domain.PurchaseCreatedPayload) error {
	unit, err := decimal.NewFromString(p.UnitPrice)
	if err != nil {
		return fmt.Errorf("%w: unit_price %q", domain.ErrInvalidArgument, p.UnitPrice)
	}
	total, err := decimal.NewFromString(p.TotalPrice)
	if err != nil {
		return fmt.Errorf("%w: total_price %q", domain.ErrInvalidArgument, p.TotalPrice)
	}
	if unit.IsNegative() {
		return fmt.Errorf("%w: unit_price %s", domain.ErrNegativePrice, p.UnitPrice)
	}
	if want := domain.NormalizeMoney(domain.LineTotal(unit, p.Quantity)); !want.Equal(domain.NormalizeMoney(total)) {
		return fmt.Errorf("%w: %s x %d != %s", domain.ErrTotalMismatch, p.UnitPrice, p.Quantity, p.TotalPrice)
	}
	if p.StockAfter != nil && *p.StockAfter < 0 {
		return fmt.Errorf("%w: stock_after=%d", domain.ErrNegativeStock, *p.StockAfter)
	}
	return nil
}

// remember возвращает false, если purchase_id уже встречался среди последних
// cap(ring) событий.
func (a *auditor) remember(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.seen[id]; ok {
		return false
	}
	if len(a.ring) < cap(a.ring) {
		a.ring = append(a.ring, id)
	} else {
		delete(a.seen, a.ring[a.next])
		a.ring[a.next] = id
		a.next = (a.next + 1) % len(a.ring)
	}
	a.seen[id] = struct{}{}
	return true
}
