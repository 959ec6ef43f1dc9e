package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Vendor — продавец, владеющий товарами.
type Vendor struct {
	ID         int64
	Name       string
	CompanyReg string
	// ProductCount заполняется только в списках.
	ProductCount int
	CreatedAt    time.Time
}

// Product — товар продавца.
type Product struct {
	ID         int64
	VendorID   int64
	VendorName string
	// Stock == nil означает неучитываемый (неограниченный) остаток.
	Stock       *int
	Price       decimal.Decimal
	Location    string
	Description *string
	// Version — токен версии для optimistic locking.
	Version   int64
	CreatedAt time.Time
}

// TracksStock сообщает, ведётся ли учёт остатка.
func (p Product) TracksStock() bool {
	return p.Stock != nil
}

// HasStockFor проверяет, хватает ли остатка на qty единиц.
func (p Product) HasStockFor(qty int) bool {
	if p.Stock == nil {
		return true
	}
	return *p.Stock >= qty
}

// StockAfter возвращает остаток после списания qty единиц, либо nil для неучитываемого остатка.
func (p Product) StockAfter(qty int) *int {
	if p.Stock == nil {
		return nil
	}
	left := *p.Stock - qty
	return &left
}

// ValidateInvariants проверяет инварианты товара.
func (p *Product) ValidateInvariants() []error {
	var errs []error
	if p.Stock != nil && *p.Stock < 0 {
		errs = append(errs, ErrNegativeStock)
	}
	if p.Price.IsNegative() {
		errs = append(errs, ErrNegativePrice)
	}
	return errs
}

// ProductFilter — фильтры выборки товаров. Пустые поля не ограничивают выборку.
type ProductFilter struct {
	VendorID *int64
	Location string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	// Search ищет подстроку в описании товара или имени продавца.
	Search string
}
