// Package catalog управляет продавцами и товарами маркетплейса.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Store — хранилище каталога.
type Store interface {
	domain.VendorRepository
	domain.ProductRepository
}

// ProductInput содержит данные нового товара.
type ProductInput struct {
	VendorID    int64
	Stock       *int
	Price       decimal.Decimal
	Location    string
	Description *string
}

// Service читает и создаёт продавцов и товары.
type Service struct {
	store  Store
	logger *log.Entry
}

// NewService создаёт сервис каталога. logger может быть nil.
func NewService(store Store, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{store: store, logger: logger}
}

// ListVendors возвращает продавцов, чьё имя содержит query, с количеством товаров.
func (s *Service) ListVendors(ctx context.Context, query string) ([]domain.Vendor, error) {
	vendors, err := s.store.ListVendors(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, internal("list vendors", err)
	}
	return vendors, nil
}

// GetVendor возвращает продавца и его товары.
func (s *Service) GetVendor(ctx context.Context, id int64) (domain.Vendor, []domain.Product, error) {
	vendor, products, err := s.store.GetVendor(ctx, id)
	if err != nil {
		return domain.Vendor{}, nil, passBusiness("get vendor", err)
	}
	return vendor, products, nil
}

// CreateVendor регистрирует продавца с уникальным регистрационным номером.
func (s *Service) CreateVendor(ctx context.Context, name, companyReg string) (domain.Vendor, error) {
	name = strings.TrimSpace(name)
	companyReg = strings.TrimSpace(companyReg)
	if name == "" || companyReg == "" {
		return domain.Vendor{}, fmt.Errorf("%w: name and company registration are required", domain.ErrInvalidArgument)
	}

	vendor, err := s.store.CreateVendor(ctx, domain.Vendor{Name: name, CompanyReg: companyReg})
	if err != nil {
		return domain.Vendor{}, passBusiness("create vendor", err)
	}
	s.logger.WithField("vendor_id", vendor.ID).Info("vendor created")
	return vendor, nil
}

// ListProducts возвращает товары по фильтру, упорядоченные по цене.
func (s *Service) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	if filter.MinPrice != nil && filter.MaxPrice != nil && filter.MinPrice.GreaterThan(*filter.MaxPrice) {
		return nil, fmt.Errorf("%w: minPrice exceeds maxPrice", domain.ErrInvalidArgument)
	}
	filter.Location = strings.TrimSpace(filter.Location)
	filter.Search = strings.TrimSpace(filter.Search)

	products, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return nil, internal("list products", err)
	}
	return products, nil
}

// GetProduct возвращает товар по идентификатору.
func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return domain.Product{}, passBusiness("get product", err)
	}
	return product, nil
}

// CreateProduct добавляет товар существующего продавца. Цена округляется до копеек.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (domain.Product, error) {
	product := domain.Product{
		VendorID:    in.VendorID,
		Stock:       in.Stock,
		Price:       domain.NormalizeMoney(in.Price),
		Location:    strings.TrimSpace(in.Location),
		Description: in.Description,
	}
	if product.Location == "" {
		return domain.Product{}, fmt.Errorf("%w: location is required", domain.ErrInvalidArgument)
	}
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, errors.Join(errs...))
	}

	created, err := s.store.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, passBusiness("create product", err)
	}
	s.logger.WithFields(log.Fields{
		"product_id": created.ID,
		"vendor_id":  created.VendorID,
	}).Info("product created")
	return created, nil
}

func passBusiness(op string, err error) error {
	if domain.IsBusinessError(err) {
		return err
	}
	return internal(op, err)
}

func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrInternal, op, err)
}
