package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase — неизменяемый факт совершённой покупки.
// После создания запись никогда не обновляется и не удаляется.
type Purchase struct {
	ID         int64
	UserID     int64
	ProductID  int64
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	CreatedAt  time.Time
}

// PurchaseDraft — черновик покупки до атомарной записи в хранилище.
type PurchaseDraft struct {
	UserID     int64
	ProductID  int64
	Quantity   int
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	CreatedAt  time.Time // хранилище заменяет временем записи
}

// NewPurchaseDraft фиксирует текущую цену товара и считает итог.
func NewPurchaseDraft(userID int64, product Product, qty int, now time.Time) PurchaseDraft {
	unit := NormalizeMoney(product.Price)
	return PurchaseDraft{
		UserID:     userID,
		ProductID:  product.ID,
		Quantity:   qty,
		UnitPrice:  unit,
		TotalPrice: LineTotal(unit, qty),
		CreatedAt:  now.UTC(),
	}
}

// ValidateInvariants проверяет инварианты покупки и возвращает список замечаний.
func (d *PurchaseDraft) ValidateInvariants() []error {
	var errs []error
	if d.Quantity < 1 {
		errs = append(errs, ErrInvalidQuantity)
	}
	if d.UnitPrice.IsNegative() {
		errs = append(errs, ErrNegativePrice)
	}
	if !d.TotalPrice.Equal(LineTotal(d.UnitPrice, d.Quantity)) {
		errs = append(errs, ErrTotalMismatch)
	}
	return errs
}

// Record превращает черновик в покупку с присвоенным идентификатором.
func (d PurchaseDraft) Record(id int64) Purchase {
	return Purchase{
		ID:         id,
		UserID:     d.UserID,
		ProductID:  d.ProductID,
		Quantity:   d.Quantity,
		UnitPrice:  d.UnitPrice,
		TotalPrice: d.TotalPrice,
		CreatedAt:  d.CreatedAt,
	}
}

// PurchaseCommit — входные данные единственной атомарной операции покупки.
type PurchaseCommit struct {
	ProductID int64
	// ExpectedVersion — версия товара на момент чтения.
	ExpectedVersion int64
	// NewStock == nil оставляет остаток без изменений (неучитываемый остаток).
	NewStock *int
	Draft    PurchaseDraft
}

// PurchaseHistoryItem — покупка пользователя вместе с данными товара.
type PurchaseHistoryItem struct {
	Purchase
	ProductDescription *string
	ProductLocation    string
	VendorName         string
}
