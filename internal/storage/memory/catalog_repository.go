package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// ListVendors возвращает продавцов, чьё имя содержит nameQuery (без учёта регистра), по имени.
func (s *Store) ListVendors(ctx context.Context, nameQuery string) ([]domain.Vendor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[int64]int, len(s.vendors))
	for _, p := range s.products {
		counts[p.VendorID]++
	}

	needle := strings.ToLower(strings.TrimSpace(nameQuery))
	result := make([]domain.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		if needle != "" && !strings.Contains(strings.ToLower(v.Name), needle) {
			continue
		}
		v.ProductCount = counts[v.ID]
		result = append(result, v)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetVendor возвращает продавца и его товары или ErrVendorNotFound.
func (s *Store) GetVendor(ctx context.Context, id int64) (domain.Vendor, []domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Vendor{}, nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	vendor, ok := s.vendors[id]
	if !ok {
		return domain.Vendor{}, nil, domain.ErrVendorNotFound
	}

	products := make([]domain.Product, 0)
	for _, p := range s.products {
		if p.VendorID == id {
			products = append(products, s.withVendorName(p))
		}
	}
	sortProducts(products)
	vendor.ProductCount = len(products)
	return vendor, products, nil
}

// CreateVendor сохраняет продавца; CompanyReg должен быть уникальным.
func (s *Store) CreateVendor(ctx context.Context, vendor domain.Vendor) (domain.Vendor, error) {
	if err := ctx.Err(); err != nil {
		return domain.Vendor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byReg[vendor.CompanyReg]; taken {
		return domain.Vendor{}, domain.ErrUniqueConstraintViolation
	}
	s.nextVendor++
	vendor.ID = s.nextVendor
	vendor.ProductCount = 0
	if vendor.CreatedAt.IsZero() {
		vendor.CreatedAt = s.now()
	}
	s.vendors[vendor.ID] = vendor
	s.byReg[vendor.CompanyReg] = vendor.ID
	return vendor, nil
}

// GetProduct возвращает снимок товара вместе с токеном версии.
func (s *Store) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return s.withVendorName(p), nil
}

// ListProducts возвращает товары по фильтру, от дешёвых к дорогим.
func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	location := strings.TrimSpace(filter.Location)
	result := make([]domain.Product, 0, len(s.products))
	for _, stored := range s.products {
		p := s.withVendorName(stored)
		if filter.VendorID != nil && p.VendorID != *filter.VendorID {
			continue
		}
		if location != "" && p.Location != location {
			continue
		}
		if filter.MinPrice != nil && p.Price.LessThan(*filter.MinPrice) {
			continue
		}
		if filter.MaxPrice != nil && p.Price.GreaterThan(*filter.MaxPrice) {
			continue
		}
		if search != "" && !matchesSearch(p, search) {
			continue
		}
		result = append(result, p)
	}
	sortProducts(result)
	return result, nil
}

// CreateProduct сохраняет товар существующего продавца с версией 1.
func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vendors[product.VendorID]; !ok {
		return domain.Product{}, domain.ErrVendorNotFound
	}
	s.nextProduct++
	product = cloneProduct(product)
	product.ID = s.nextProduct
	product.Price = domain.NormalizeMoney(product.Price)
	product.Version = 1
	if product.CreatedAt.IsZero() {
		product.CreatedAt = s.now()
	}
	product.VendorName = ""
	s.products[product.ID] = product
	return s.withVendorName(product), nil
}

// withVendorName возвращает копию товара с именем продавца. Вызывать под блокировкой.
func (s *Store) withVendorName(p domain.Product) domain.Product {
	p = cloneProduct(p)
	p.VendorName = s.vendors[p.VendorID].Name
	return p
}

func matchesSearch(p domain.Product, needle string) bool {
	if p.Description != nil && strings.Contains(strings.ToLower(*p.Description), needle) {
		return true
	}
	return strings.Contains(strings.ToLower(p.VendorName), needle)
}

func sortProducts(products []domain.Product) {
	sort.Slice(products, func(i, j int) bool {
		if c := products[i].Price.Cmp(products[j].Price); c != 0 {
			return c < 0
		}
		return products[i].ID < products[j].ID
	})
}
