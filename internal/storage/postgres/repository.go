package postgres

import "github.com/vladislavdragonenkov/marketplace/internal/domain"

type marketplaceRepository struct {
	domain.UserRepository
	*CatalogRepository
	domain.PurchaseRepository
}

// RepositoryOption настраивает репозитории поверх Store.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	outbox bool
}

// WithoutOutbox отключает запись событий покупок в outbox_messages.
// Используется, когда relay в Kafka не запущен.
func WithoutOutbox() RepositoryOption {
	return func(o *repositoryOptions) {
		o.outbox = false
	}
}

func buildRepositoryOptions(opts []RepositoryOption) repositoryOptions {
	o := repositoryOptions{outbox: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// NewRepository собирает domain.Store поверх одного пула подключений.
func NewRepository(store *Store, opts ...RepositoryOption) domain.Store {
	return &marketplaceRepository{
		UserRepository:     NewUserRepository(store),
		CatalogRepository:  NewCatalogRepository(store),
		PurchaseRepository: NewPurchaseRepository(store, opts...),
	}
}
