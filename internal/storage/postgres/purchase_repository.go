package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type purchaseRepository struct {
	db     *sql.DB
	outbox bool
}

// NewPurchaseRepository создаёт PostgreSQL-реализацию PurchaseRepository.
func NewPurchaseRepository(store *Store, opts ...RepositoryOption) domain.PurchaseRepository {
	o := buildRepositoryOptions(opts)
	return &purchaseRepository{db: store.DB(), outbox: o.outbox}
}

// CommitPurchase выполняет в одной транзакции условную запись товара,
// вставку покупки и постановку события в outbox (если он не отключён).
//
// Для учитываемого остатка UPDATE ... WHERE version = $expected увеличивает версию;
// конкурент, прочитавший ту же версию, после нашего коммита получит 0 строк.
// Для неучитываемого остатка строка берётся FOR SHARE с той же проверкой версии:
// покупатели одного безлимитного товара не блокируют друг друга.
func (r *purchaseRepository) CommitPurchase(ctx context.Context, commit domain.PurchaseCommit) (domain.Purchase, int64, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Purchase{}, 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		// После Commit откат возвращает sql.ErrTxDone и ничего не делает.
		_ = tx.Rollback()
	}()

	var newVersion int64
	if commit.NewStock != nil {
		err = tx.QueryRowContext(ctx, `
			UPDATE products
			SET stock = $1,
			    version = version + 1
			WHERE id = $2
			  AND version = $3
			RETURNING version
		`, *commit.NewStock, commit.ProductID, commit.ExpectedVersion).Scan(&newVersion)
	} else {
		err = tx.QueryRowContext(ctx, `
			SELECT version
			FROM products
			WHERE id = $1
			  AND version = $2
			  AND stock IS NULL
			FOR SHARE
		`, commit.ProductID, commit.ExpectedVersion).Scan(&newVersion)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Purchase{}, 0, r.missOrConflict(ctx, tx, commit.ProductID)
	}
	if err != nil {
		if isCheckViolation(err, "products_stock_non_negative") {
			return domain.Purchase{}, 0, domain.ErrNegativeStock
		}
		return domain.Purchase{}, 0, fmt.Errorf("conditional product write %d: %w", commit.ProductID, err)
	}

	// created_at ставится в момент вставки и не меньше последнего записанного.
	draft := commit.Draft
	var (
		id        int64
		createdAt time.Time
	)
	if err = tx.QueryRowContext(ctx, `
		INSERT INTO purchases (user_id, product_id, quantity, unit_price, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5,
		        GREATEST(clock_timestamp(), (SELECT max(created_at) FROM purchases)))
		RETURNING id, created_at
	`,
		draft.UserID, draft.ProductID, draft.Quantity,
		draft.UnitPrice, draft.TotalPrice,
	).Scan(&id, &createdAt); err != nil {
		if isForeignKeyViolation(err) {
			return domain.Purchase{}, 0, domain.ErrUserNotFound
		}
		return domain.Purchase{}, 0, fmt.Errorf("insert purchase: %w", err)
	}
	draft.CreatedAt = createdAt.UTC()
	purchase := draft.Record(id)

	if r.outbox {
		msg, err := domain.NewPurchaseCreatedMessage(purchase, commit.NewStock)
		if err != nil {
			return domain.Purchase{}, 0, err
		}
		if _, err = enqueueOutboxTx(ctx, tx, msg); err != nil {
			return domain.Purchase{}, 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return domain.Purchase{}, 0, fmt.Errorf("commit purchase: %w", err)
	}
	return purchase, newVersion, nil
}

func (r *purchaseRepository) ListUserPurchases(ctx context.Context, userID int64) ([]domain.PurchaseHistoryItem, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT pu.id, pu.user_id, pu.product_id, pu.quantity, pu.unit_price, pu.total_price, pu.created_at,
		       p.description, p.location, v.name
		FROM purchases pu
		JOIN products p ON p.id = pu.product_id
		JOIN vendors v ON v.id = p.vendor_id
		WHERE pu.user_id = $1
		ORDER BY pu.created_at DESC, pu.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchases of user %d: %w", userID, err)
	}
	defer rows.Close()

	items := make([]domain.PurchaseHistoryItem, 0)
	for rows.Next() {
		var (
			item domain.PurchaseHistoryItem
			desc sql.NullString
		)
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.ProductID, &item.Quantity,
			&item.UnitPrice, &item.TotalPrice, &item.CreatedAt,
			&desc, &item.ProductLocation, &item.VendorName,
		); err != nil {
			return nil, fmt.Errorf("scan purchase row: %w", err)
		}
		if desc.Valid {
			d := desc.String
			item.ProductDescription = &d
		}
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate purchase rows: %w", err)
	}
	return items, nil
}

// missOrConflict различает отсутствие товара и конфликт версий после промаха условной записи.
func (r *purchaseRepository) missOrConflict(ctx context.Context, tx *sql.Tx, productID int64) error {
	var id int64
	err := tx.QueryRowContext(ctx, `SELECT id FROM products WHERE id = $1`, productID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrProductNotFound
	}
	if err != nil {
		return fmt.Errorf("check product exists: %w", err)
	}
	return domain.ErrVersionConflict
}

var _ domain.PurchaseRepository = (*purchaseRepository)(nil)
