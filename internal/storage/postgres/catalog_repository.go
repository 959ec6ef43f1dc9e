package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const selectProductColumns = `
	SELECT p.id, p.vendor_id, v.name, p.stock, p.price, p.location, p.description, p.version, p.created_at
	FROM products p
	JOIN vendors v ON v.id = p.vendor_id`

// CatalogRepository — PostgreSQL-реализация чтения и создания продавцов и товаров.
type CatalogRepository struct {
	db *sql.DB
}

// NewCatalogRepository создаёт CatalogRepository.
func NewCatalogRepository(store *Store) *CatalogRepository {
	return &CatalogRepository{db: store.DB()}
}

func (r *CatalogRepository) ListVendors(ctx context.Context, nameQuery string) ([]domain.Vendor, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT v.id, v.name, v.company_reg, v.created_at, COUNT(p.id)
		FROM vendors v
		LEFT JOIN products p ON p.vendor_id = v.id
		WHERE $1 = '' OR v.name ILIKE $2
		GROUP BY v.id
		ORDER BY v.name, v.id
	`, strings.TrimSpace(nameQuery), containsPattern(nameQuery))
	if err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	defer rows.Close()

	vendors := make([]domain.Vendor, 0)
	for rows.Next() {
		var v domain.Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.CompanyReg, &v.CreatedAt, &v.ProductCount); err != nil {
			return nil, fmt.Errorf("scan vendor row: %w", err)
		}
		v.CreatedAt = v.CreatedAt.UTC()
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vendor rows: %w", err)
	}
	return vendors, nil
}

func (r *CatalogRepository) GetVendor(ctx context.Context, id int64) (domain.Vendor, []domain.Product, error) {
	opCtx, cancel := withOpTimeout(ctx)
	defer cancel()

	var v domain.Vendor
	err := r.db.QueryRowContext(opCtx, `
		SELECT id, name, company_reg, created_at FROM vendors WHERE id = $1
	`, id).Scan(&v.ID, &v.Name, &v.CompanyReg, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vendor{}, nil, domain.ErrVendorNotFound
	}
	if err != nil {
		return domain.Vendor{}, nil, fmt.Errorf("select vendor %d: %w", id, err)
	}
	v.CreatedAt = v.CreatedAt.UTC()

	products, err := r.ListProducts(ctx, domain.ProductFilter{VendorID: &id})
	if err != nil {
		return domain.Vendor{}, nil, err
	}
	v.ProductCount = len(products)
	return v, products, nil
}

func (r *CatalogRepository) CreateVendor(ctx context.Context, vendor domain.Vendor) (domain.Vendor, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO vendors (name, company_reg, created_at)
		VALUES ($1, $2, COALESCE($3, NOW()))
		RETURNING id, created_at
	`, vendor.Name, vendor.CompanyReg, nullTime(vendor.CreatedAt)).Scan(&vendor.ID, &vendor.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Vendor{}, domain.ErrUniqueConstraintViolation
		}
		return domain.Vendor{}, fmt.Errorf("insert vendor: %w", err)
	}
	vendor.CreatedAt = vendor.CreatedAt.UTC()
	vendor.ProductCount = 0
	return vendor, nil
}

func (r *CatalogRepository) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	product, err := scanProduct(r.db.QueryRowContext(ctx, selectProductColumns+` WHERE p.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("select product %d: %w", id, err)
	}
	return product, nil
}

func (r *CatalogRepository) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	ctx, cancel := withOpTimeout(ctx)
	defer cancel()

	query, args := buildProductQuery(filter)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}
	return products, nil
}

func (r *CatalogRepository) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	opCtx, cancel := withOpTimeout(ctx)
	defer cancel()

	var id int64
	err := r.db.QueryRowContext(opCtx, `
		INSERT INTO products (vendor_id, stock, price, location, description, version, created_at)
		VALUES ($1, $2, $3, $4, $5, 1, COALESCE($6, NOW()))
		RETURNING id
	`,
		product.VendorID, nullStock(product.Stock), domain.NormalizeMoney(product.Price),
		product.Location, nullString(product.Description), nullTime(product.CreatedAt),
	).Scan(&id)
	if err != nil {
		switch {
		case isForeignKeyViolation(err):
			return domain.Product{}, domain.ErrVendorNotFound
		case isCheckViolation(err, "products_stock_non_negative"):
			return domain.Product{}, domain.ErrNegativeStock
		case isCheckViolation(err, "products_price_non_negative"):
			return domain.Product{}, domain.ErrNegativePrice
		}
		return domain.Product{}, fmt.Errorf("insert product: %w", err)
	}
	return r.GetProduct(ctx, id)
}

// buildProductQuery собирает выборку товаров с позиционными параметрами.
func buildProductQuery(filter domain.ProductFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.VendorID != nil {
		add("p.vendor_id = $%d", *filter.VendorID)
	}
	if loc := strings.TrimSpace(filter.Location); loc != "" {
		add("p.location = $%d", loc)
	}
	if filter.MinPrice != nil {
		add("p.price >= $%d", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		add("p.price <= $%d", *filter.MaxPrice)
	}
	if strings.TrimSpace(filter.Search) != "" {
		args = append(args, containsPattern(filter.Search))
		n := len(args)
		conds = append(conds, fmt.Sprintf("(p.description ILIKE $%d OR v.name ILIKE $%d)", n, n))
	}

	query := selectProductColumns
	if len(conds) > 0 {
		query += "\n\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\tORDER BY p.price, p.id"
	return query, args
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p     domain.Product
		stock sql.NullInt64
		desc  sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.VendorID, &p.VendorName, &stock, &p.Price,
		&p.Location, &desc, &p.Version, &p.CreatedAt,
	); err != nil {
		return domain.Product{}, err
	}
	if stock.Valid {
		v := int(stock.Int64)
		p.Stock = &v
	}
	if desc.Valid {
		d := desc.String
		p.Description = &d
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}

// containsPattern экранирует спецсимволы LIKE и оборачивает строку в %...%.
func containsPattern(s string) string {
	s = strings.TrimSpace(s)
	s = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
	return "%" + s + "%"
}

func nullStock(stock *int) sql.NullInt64 {
	if stock == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*stock), Valid: true}
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

var (
	_ domain.ProductRepository = (*CatalogRepository)(nil)
	_ domain.VendorRepository  = (*CatalogRepository)(nil)
)
