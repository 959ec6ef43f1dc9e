package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func intPtr(v int) *int { return &v }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newCatalog(t *testing.T) (*Service, domain.Vendor) {
	t.Helper()
	svc := NewService(memory.NewStore(), nil)
	vendor, err := svc.CreateVendor(context.Background(), " Karoo Farms ", "2020/000001/07")
	require.NoError(t, err)
	return svc, vendor
}

func TestCreateVendor(t *testing.T) {
	svc, vendor := newCatalog(t)
	ctx := context.Background()

	assert.Equal(t, "Karoo Farms", vendor.Name)

	_, err := svc.CreateVendor(ctx, "Copycat", "2020/000001/07")
	require.ErrorIs(t, err, domain.ErrUniqueConstraintViolation)

	_, err = svc.CreateVendor(ctx, "", "x")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.CreateVendor(ctx, "Name", "  ")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestCreateProduct(t *testing.T) {
	svc, vendor := newCatalog(t)
	ctx := context.Background()

	product, err := svc.CreateProduct(ctx, ProductInput{
		VendorID: vendor.ID,
		Stock:    intPtr(3),
		Price:    decimal.RequireFromString("12.345"),
		Location: " Durban ",
	})
	require.NoError(t, err)
	assert.Equal(t, "12.35", domain.FormatMoney(product.Price))
	assert.Equal(t, "Durban", product.Location)
	assert.Equal(t, "Karoo Farms", product.VendorName)
	assert.Equal(t, int64(1), product.Version)

	tests := []struct {
		name string
		in   ProductInput
		want error
	}{
		{name: "negative stock", in: ProductInput{VendorID: vendor.ID, Stock: intPtr(-1), Price: decimal.NewFromInt(1), Location: "x"}, want: domain.ErrInvalidArgument},
		{name: "negative price", in: ProductInput{VendorID: vendor.ID, Price: decimal.NewFromInt(-1), Location: "x"}, want: domain.ErrInvalidArgument},
		{name: "missing location", in: ProductInput{VendorID: vendor.ID, Price: decimal.NewFromInt(1)}, want: domain.ErrInvalidArgument},
		{name: "unknown vendor", in: ProductInput{VendorID: 999, Price: decimal.NewFromInt(1), Location: "x"}, want: domain.ErrVendorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProduct(ctx, tt.in)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCreateProduct_NegativeStockReportsCause(t *testing.T) {
	svc, vendor := newCatalog(t)

	_, err := svc.CreateProduct(context.Background(), ProductInput{
		VendorID: vendor.ID,
		Stock:    intPtr(-5),
		Price:    decimal.NewFromInt(-1),
		Location: "x",
	})
	require.ErrorIs(t, err, domain.ErrNegativeStock)
	require.ErrorIs(t, err, domain.ErrNegativePrice)
}

func TestListProductsAndVendors(t *testing.T) {
	svc, karoo := newCatalog(t)
	ctx := context.Background()
	other, err := svc.CreateVendor(ctx, "Highveld Goods", "2021/000002/07")
	require.NoError(t, err)

	for _, in := range []ProductInput{
		{VendorID: karoo.ID, Price: decimal.NewFromInt(30), Location: "Cape Town"},
		{VendorID: karoo.ID, Price: decimal.NewFromInt(10), Location: "Cape Town"},
		{VendorID: other.ID, Price: decimal.NewFromInt(20), Location: "Pretoria"},
	} {
		_, err := svc.CreateProduct(ctx, in)
		require.NoError(t, err)
	}

	all, err := svc.ListProducts(ctx, domain.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "10.00", domain.FormatMoney(all[0].Price))
	assert.Equal(t, "30.00", domain.FormatMoney(all[2].Price))

	ranged, err := svc.ListProducts(ctx, domain.ProductFilter{MinPrice: decPtr("15"), MaxPrice: decPtr("30"), Location: " Cape Town "})
	require.NoError(t, err)
	require.Len(t, ranged, 1)
	assert.Equal(t, "30.00", domain.FormatMoney(ranged[0].Price))

	_, err = svc.ListProducts(ctx, domain.ProductFilter{MinPrice: decPtr("31"), MaxPrice: decPtr("30")})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	vendors, err := svc.ListVendors(ctx, "karoo")
	require.NoError(t, err)
	require.Len(t, vendors, 1)
	assert.Equal(t, 2, vendors[0].ProductCount)

	vendor, products, err := svc.GetVendor(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "Highveld Goods", vendor.Name)
	assert.Len(t, products, 1)

	_, _, err = svc.GetVendor(ctx, 999)
	require.ErrorIs(t, err, domain.ErrVendorNotFound)
	_, err = svc.GetProduct(ctx, 999)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
}

type brokenStore struct {
	*memory.Store
}

func (brokenStore) ListVendors(context.Context, string) ([]domain.Vendor, error) {
	return nil, errors.New("disk on fire")
}

func TestStoreFailureIsInternal(t *testing.T) {
	svc := NewService(brokenStore{Store: memory.NewStore()}, nil)
	_, err := svc.ListVendors(context.Background(), "")
	require.ErrorIs(t, err, domain.ErrInternal)
}
