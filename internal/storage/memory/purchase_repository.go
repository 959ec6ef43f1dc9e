package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// CommitPurchase атомарно применяет покупку при совпадении версии товара.
// Для учитываемого остатка версия увеличивается; для неучитываемого запись
// только сверяет версию (цена не менялась) и оставляет её прежней.
func (s *Store) CommitPurchase(ctx context.Context, commit domain.PurchaseCommit) (domain.Purchase, int64, error) {
	if err := ctx.Err(); err != nil {
		return domain.Purchase{}, 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[commit.ProductID]
	if !ok {
		return domain.Purchase{}, 0, domain.ErrProductNotFound
	}
	if current.Version != commit.ExpectedVersion {
		return domain.Purchase{}, 0, domain.ErrVersionConflict
	}
	if commit.NewStock != nil && *commit.NewStock < 0 {
		return domain.Purchase{}, 0, domain.ErrNegativeStock
	}
	if errs := commit.Draft.ValidateInvariants(); len(errs) > 0 {
		return domain.Purchase{}, 0, fmt.Errorf("purchase draft rejected: %w", errs[0])
	}

	// Время покупки ставится при записи и не убывает вместе с порядком id.
	draft := commit.Draft
	draft.CreatedAt = s.now()
	if n := len(s.purchases); n > 0 && draft.CreatedAt.Before(s.purchases[n-1].CreatedAt) {
		draft.CreatedAt = s.purchases[n-1].CreatedAt
	}
	record := draft.Record(s.nextBuy + 1)

	// Outbox пишем до изменения состояния: при ошибке ничего не применяется.
	if s.outbox != nil {
		msg, err := domain.NewPurchaseCreatedMessage(record, commit.NewStock)
		if err != nil {
			return domain.Purchase{}, 0, err
		}
		if _, err := s.outbox.Enqueue(msg); err != nil {
			return domain.Purchase{}, 0, fmt.Errorf("enqueue purchase event: %w", err)
		}
	}

	s.nextBuy++
	if commit.NewStock != nil {
		stock := *commit.NewStock
		current.Stock = &stock
		current.Version++
		s.products[current.ID] = current
	}
	s.purchases = append(s.purchases, record)
	return record, current.Version, nil
}

// ListUserPurchases возвращает покупки пользователя, новые первыми.
func (s *Store) ListUserPurchases(ctx context.Context, userID int64) ([]domain.PurchaseHistoryItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.PurchaseHistoryItem, 0)
	for _, p := range s.purchases {
		if p.UserID != userID {
			continue
		}
		product := s.withVendorName(s.products[p.ProductID])
		result = append(result, domain.PurchaseHistoryItem{
			Purchase:           p,
			ProductDescription: product.Description,
			ProductLocation:    product.Location,
			VendorName:         product.VendorName,
		})
	}

	sort.SliceStable(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}
