package domain

import "github.com/shopspring/decimal"

// MoneyScale — количество знаков после запятой у денежных сумм.
const MoneyScale = 2

// NormalizeMoney приводит сумму к фиксированной точности MoneyScale.
func NormalizeMoney(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(MoneyScale)
}

// LineTotal считает unitPrice × qty точно, без округления.
func LineTotal(unitPrice decimal.Decimal, qty int) decimal.Decimal {
	return unitPrice.Mul(decimal.NewFromInt(int64(qty)))
}

// FormatMoney возвращает строку ровно с двумя знаками после запятой.
func FormatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(MoneyScale)
}
