package domain

import "context"

// UserRepository описывает требования к хранилищу пользователей.
type UserRepository interface {
	// GetUser возвращает пользователя или ErrUserNotFound.
	GetUser(ctx context.Context, id int64) (User, error)
	// FindUserByUsernameOrEmail ищет пользователя с совпадающим username или email
	// (email сравнивается без учёта регистра). found=false, если совпадений нет.
	FindUserByUsernameOrEmail(ctx context.Context, username, email string) (user User, found bool, err error)
	// FindUserByLogin ищет пользователя по username, затем по email; ErrUserNotFound, если нет.
	FindUserByLogin(ctx context.Context, login string) (User, error)
	// InsertUser сохраняет пользователя и возвращает его с присвоенным ID.
	// Ограничение уникальности хранилища — единственный источник ErrUniqueConstraintViolation.
	InsertUser(ctx context.Context, user User) (User, error)
}

// ProductRepository описывает чтение и создание товаров.
type ProductRepository interface {
	// GetProduct возвращает товар с текущим токеном версии или ErrProductNotFound.
	GetProduct(ctx context.Context, id int64) (Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
	// CreateProduct требует существующего продавца, иначе ErrVendorNotFound.
	CreateProduct(ctx context.Context, product Product) (Product, error)
}

// VendorRepository описывает чтение и создание продавцов.
type VendorRepository interface {
	ListVendors(ctx context.Context, nameQuery string) ([]Vendor, error)
	// GetVendor возвращает продавца вместе с его товарами или ErrVendorNotFound.
	GetVendor(ctx context.Context, id int64) (Vendor, []Product, error)
	// CreateVendor возвращает ErrUniqueConstraintViolation при повторном CompanyReg.
	CreateVendor(ctx context.Context, vendor Vendor) (Vendor, error)
}

// PurchaseRepository описывает запись и чтение покупок.
type PurchaseRepository interface {
	// CommitPurchase атомарно списывает остаток (если NewStock != nil), вставляет покупку
	// и ставит событие в outbox. Запись выполняется только если версия товара равна
	// ExpectedVersion; иначе ErrVersionConflict. ErrProductNotFound, если товара нет.
	// CreatedAt покупки проставляется при записи и не убывает в порядке коммитов.
	// Возвращает покупку и новую версию товара.
	CommitPurchase(ctx context.Context, commit PurchaseCommit) (Purchase, int64, error)
	// ListUserPurchases возвращает покупки пользователя, новые первыми.
	ListUserPurchases(ctx context.Context, userID int64) ([]PurchaseHistoryItem, error)
}

// Store объединяет контракты хранилища маркетплейса.
type Store interface {
	UserRepository
	ProductRepository
	VendorRepository
	PurchaseRepository
}
