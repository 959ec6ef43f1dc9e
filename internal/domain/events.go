package domain

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

const (
	// AggregatePurchase — тип агрегата для событий покупок.
	AggregatePurchase = "purchase"
	// EventPurchaseCreated публикуется после фиксации покупки.
	EventPurchaseCreated = "purchase.created"
)

// PurchaseCreatedPayload — тело события purchase.created.
// Денежные поля сериализуются строками с двумя знаками.
type PurchaseCreatedPayload struct {
	PurchaseID int64     `json:"purchase_id"`
	UserID     int64     `json:"user_id"`
	ProductID  int64     `json:"product_id"`
	Quantity   int       `json:"quantity"`
	UnitPrice  string    `json:"unit_price"`
	TotalPrice string    `json:"total_price"`
	StockAfter *int      `json:"stock_after,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewPurchaseCreatedMessage собирает outbox-сообщение для зафиксированной покупки.
func NewPurchaseCreatedMessage(p Purchase, stockAfter *int) (OutboxMessage, error) {
	payload, err := json.Marshal(PurchaseCreatedPayload{
		PurchaseID: p.ID,
		UserID:     p.UserID,
		ProductID:  p.ProductID,
		Quantity:   p.Quantity,
		UnitPrice:  FormatMoney(p.UnitPrice),
		TotalPrice: FormatMoney(p.TotalPrice),
		StockAfter: stockAfter,
		CreatedAt:  p.CreatedAt,
	})
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal purchase event: %w", err)
	}
	return OutboxMessage{
		AggregateType: AggregatePurchase,
		AggregateID:   strconv.FormatInt(p.ID, 10),
		EventType:     EventPurchaseCreated,
		Payload:       payload,
	}, nil
}
