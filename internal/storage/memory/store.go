package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Store — in-memory реализация domain.Store для локальной разработки и тестов.
// Все сущности живут под одним мьютексом, поэтому CommitPurchase атомарна:
// проверка версии, списание остатка, вставка покупки и запись в outbox
// видны другим читателям только целиком.
type Store struct {
	mu sync.RWMutex

	users       map[int64]domain.User
	byUsername  map[string]int64
	byEmail     map[string]int64
	vendors     map[int64]domain.Vendor
	byReg       map[string]int64
	products    map[int64]domain.Product
	purchases   []domain.Purchase
	nextUser    int64
	nextVendor  int64
	nextProduct int64
	nextBuy     int64

	outbox domain.OutboxRepository
	now    func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithOutbox подключает outbox, в который CommitPurchase пишет события.
func WithOutbox(outbox domain.OutboxRepository) Option {
	return func(s *Store) {
		s.outbox = outbox
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore создаёт пустое хранилище.
func NewStore(opts ...Option) *Store {
	s := &Store{
		users:      make(map[int64]domain.User),
		byUsername: make(map[string]int64),
		byEmail:    make(map[string]int64),
		vendors:    make(map[int64]domain.Vendor),
		byReg:      make(map[string]int64),
		products:   make(map[int64]domain.Product),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ping всегда успешен; нужен для health-check наравне с PostgreSQL.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func cloneProduct(p domain.Product) domain.Product {
	if p.Stock != nil {
		stock := *p.Stock
		p.Stock = &stock
	}
	if p.Description != nil {
		desc := *p.Description
		p.Description = &desc
	}
	return p
}

func cloneUser(u domain.User) domain.User {
	u.PasswordHash = append([]byte(nil), u.PasswordHash...)
	u.PasswordSalt = append([]byte(nil), u.PasswordSalt...)
	return u
}

var _ domain.Store = (*Store)(nil)
