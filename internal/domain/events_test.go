package domain_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestNewPurchaseCreatedMessage(t *testing.T) {
	createdAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	stock := 2
	msg, err := domain.NewPurchaseCreatedMessage(domain.Purchase{
		ID:         7,
		UserID:     1,
		ProductID:  10,
		Quantity:   3,
		UnitPrice:  decimal.RequireFromString("10"),
		TotalPrice: decimal.RequireFromString("30"),
		CreatedAt:  createdAt,
	}, &stock)
	if err != nil {
		t.Fatalf("build message: %v", err)
	}

	if msg.AggregateType != domain.AggregatePurchase || msg.AggregateID != "7" || msg.EventType != domain.EventPurchaseCreated {
		t.Fatalf("unexpected envelope: %+v", msg)
	}

	var payload domain.PurchaseCreatedPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.UnitPrice != "10.00" || payload.TotalPrice != "30.00" {
		t.Fatalf("expected two-digit money, got %s / %s", payload.UnitPrice, payload.TotalPrice)
	}
	if payload.StockAfter == nil || *payload.StockAfter != 2 {
		t.Fatalf("unexpected stock_after: %v", payload.StockAfter)
	}
	if !payload.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected created_at: %v", payload.CreatedAt)
	}
}
