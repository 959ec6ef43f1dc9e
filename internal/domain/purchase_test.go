package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func makeProduct(stock *int, price string) domain.Product {
	return domain.Product{
		ID:       10,
		VendorID: 1,
		Stock:    stock,
		Price:    decimal.RequireFromString(price),
		Location: "Cape Town",
		Version:  3,
	}
}

func intPtr(v int) *int { return &v }

func TestNewPurchaseDraft_SnapshotsPrice(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("SAST", 2*60*60))
	product := makeProduct(intPtr(5), "10.00")

	draft := domain.NewPurchaseDraft(42, product, 3, now)

	if draft.UserID != 42 || draft.ProductID != 10 || draft.Quantity != 3 {
		t.Fatalf("unexpected draft identity: %+v", draft)
	}
	if got := domain.FormatMoney(draft.UnitPrice); got != "10.00" {
		t.Fatalf("expected unit price 10.00, got %s", got)
	}
	if got := domain.FormatMoney(draft.TotalPrice); got != "30.00" {
		t.Fatalf("expected total price 30.00, got %s", got)
	}
	if draft.CreatedAt.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", draft.CreatedAt.Location())
	}
	if !draft.CreatedAt.Equal(now) {
		t.Fatalf("expected same instant, got %v", draft.CreatedAt)
	}
	if errs := draft.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestPurchaseDraft_TotalHasNoRoundingDrift(t *testing.T) {
	cases := []struct {
		price string
		qty   int
		total string
	}{
		{price: "0.10", qty: 3, total: "0.30"},
		{price: "19.99", qty: 7, total: "139.93"},
		{price: "0.01", qty: 1000000, total: "10000.00"},
		{price: "123456.78", qty: 9, total: "1111111.02"},
	}

	for _, tc := range cases {
		draft := domain.NewPurchaseDraft(1, makeProduct(nil, tc.price), tc.qty, time.Now())
		if got := domain.FormatMoney(draft.TotalPrice); got != tc.total {
			t.Errorf("%s x %d: expected %s, got %s", tc.price, tc.qty, tc.total, got)
		}
	}
}

func TestPurchaseDraft_ValidateInvariants(t *testing.T) {
	cases := []struct {
		name string
		mut  func(d *domain.PurchaseDraft)
		want error
	}{
		{
			name: "zero quantity",
			mut:  func(d *domain.PurchaseDraft) { d.Quantity = 0; d.TotalPrice = decimal.Zero },
			want: domain.ErrInvalidQuantity,
		},
		{
			name: "negative price",
			mut: func(d *domain.PurchaseDraft) {
				d.UnitPrice = decimal.RequireFromString("-1.00")
				d.TotalPrice = domain.LineTotal(d.UnitPrice, d.Quantity)
			},
			want: domain.ErrNegativePrice,
		},
		{
			name: "total mismatch",
			mut:  func(d *domain.PurchaseDraft) { d.TotalPrice = d.TotalPrice.Add(decimal.RequireFromString("0.01")) },
			want: domain.ErrTotalMismatch,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft := domain.NewPurchaseDraft(1, makeProduct(intPtr(5), "2.50"), 2, time.Now())
			tc.mut(&draft)
			errs := draft.ValidateInvariants()
			found := false
			for _, err := range errs {
				if errors.Is(err, tc.want) {
					found = true
				}
			}
			if !found {
				t.Fatalf("expected %v in %v", tc.want, errs)
			}
		})
	}
}

func TestPurchaseDraft_Record(t *testing.T) {
	draft := domain.NewPurchaseDraft(1, makeProduct(intPtr(5), "2.50"), 2, time.Now())
	rec := draft.Record(99)
	if rec.ID != 99 || rec.UserID != 1 || rec.ProductID != 10 || rec.Quantity != 2 {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if !rec.TotalPrice.Equal(draft.TotalPrice) || !rec.CreatedAt.Equal(draft.CreatedAt) {
		t.Fatalf("record lost draft values: %+v", rec)
	}
}

func TestProductStockHelpers(t *testing.T) {
	tracked := makeProduct(intPtr(2), "1.00")
	if !tracked.TracksStock() {
		t.Fatal("expected tracked stock")
	}
	if !tracked.HasStockFor(2) || tracked.HasStockFor(3) {
		t.Fatal("unexpected HasStockFor result for tracked stock")
	}
	if after := tracked.StockAfter(2); after == nil || *after != 0 {
		t.Fatalf("expected stock 0 after purchase, got %v", after)
	}

	unlimited := makeProduct(nil, "1.00")
	if unlimited.TracksStock() {
		t.Fatal("expected untracked stock")
	}
	if !unlimited.HasStockFor(1_000_000) {
		t.Fatal("untracked stock must satisfy any quantity")
	}
	if unlimited.StockAfter(5) != nil {
		t.Fatal("untracked stock must stay nil")
	}
}

func TestProductValidateInvariants(t *testing.T) {
	p := makeProduct(intPtr(-1), "-0.01")
	errs := p.ValidateInvariants()
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if !errors.Is(errs[0], domain.ErrNegativeStock) || !errors.Is(errs[1], domain.ErrNegativePrice) {
		t.Fatalf("unexpected errors: %v", errs)
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := domain.NormalizeEmail("  Alice@Example.COM "); got != "alice@example.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
	if got := domain.NormalizeUsername("  alice "); got != "alice" {
		t.Fatalf("unexpected normalized username %q", got)
	}
}
