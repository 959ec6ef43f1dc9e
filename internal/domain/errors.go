package domain

import "errors"

var (
	// ErrInvalidQuantity — количество в покупке меньше единицы.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrUserNotFound возвращается, если пользователь не найден в хранилище.
	ErrUserNotFound = errors.New("user not found")
	// ErrProductNotFound возвращается, если товар не найден в хранилище.
	ErrProductNotFound = errors.New("product not found")
	// ErrVendorNotFound возвращается, если продавец не найден в хранилище.
	ErrVendorNotFound = errors.New("vendor not found")
	// ErrInsufficientStock — запрошено больше единиц, чем осталось на складе.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrVersionConflict сигнализирует, что товар изменился между чтением и условной записью.
	ErrVersionConflict = errors.New("product version conflict")
	// ErrConcurrencyExhausted — исчерпан лимит повторов при конфликтах версий.
	// Вызывающая сторона может повторить запрос.
	ErrConcurrencyExhausted = errors.New("concurrency retries exhausted")
	// ErrUniqueConstraintViolation — логин, email или рег. номер продавца уже заняты.
	ErrUniqueConstraintViolation = errors.New("unique constraint violation")
	// ErrInvalidCredentials — неверная пара логин/пароль (без уточнения причины).
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidArgument — некорректные входные данные вне бизнес-инвариантов покупки.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNegativeStock — отрицательный остаток товара.
	ErrNegativeStock = errors.New("stock must be non-negative")
	// ErrNegativePrice — отрицательная цена товара.
	ErrNegativePrice = errors.New("price must be non-negative")
	// ErrTotalMismatch — итоговая сумма покупки не равна unitPrice × quantity.
	ErrTotalMismatch = errors.New("total price does not match unit price times quantity")
	// ErrInternal — сбой хранилища/транспорта, таймаут транзакции или непредвиденная ошибка.
	ErrInternal = errors.New("internal error")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsNotFound проверяет, относится ли ошибка к отсутствующей сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrVendorNotFound)
}

// IsBusinessError сообщает, является ли ошибка типизированным бизнес-исходом,
// а не внутренним сбоем.
func IsBusinessError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrConcurrencyExhausted),
		errors.Is(err, ErrUniqueConstraintViolation),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidArgument),
		IsNotFound(err):
		return true
	default:
		return false
	}
}
