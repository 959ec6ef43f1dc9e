package httpapi

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Денежные поля отдаются строкой ровно с двумя знаками после запятой.

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	UsernameOrEmail string `json:"usernameOrEmail"`
	Username        string `json:"username"`
	Password        string `json:"password"`
}

func (r loginRequest) login() string {
	if r.UsernameOrEmail != "" {
		return r.UsernameOrEmail
	}
	return r.Username
}

type userResponse struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

type purchaseRequest struct {
	UserID    int64 `json:"userId"`
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

type purchaseResponse struct {
	PurchaseID int64     `json:"purchaseId"`
	UserID     int64     `json:"userId"`
	ProductID  int64     `json:"productId"`
	Quantity   int       `json:"quantity"`
	UnitPrice  string    `json:"unitPrice"`
	TotalPrice string    `json:"totalPrice"`
	CreatedAt  time.Time `json:"createdAt"`
}

type historyProduct struct {
	ProductID   int64   `json:"productId"`
	Description *string `json:"description"`
	Location    string  `json:"location"`
	Vendor      string  `json:"vendor"`
}

type historyItemResponse struct {
	PurchaseID int64          `json:"purchaseId"`
	CreatedAt  time.Time      `json:"createdAt"`
	Quantity   int            `json:"quantity"`
	UnitPrice  string         `json:"unitPrice"`
	TotalPrice string         `json:"totalPrice"`
	Product    historyProduct `json:"product"`
}

type vendorRequest struct {
	VendorName string `json:"vendorName"`
	CompanyReg string `json:"companyReg"`
}

type vendorResponse struct {
	VendorID     int64  `json:"vendorId"`
	VendorName   string `json:"vendorName"`
	CompanyReg   string `json:"companyReg"`
	ProductCount int    `json:"productCount"`
}

type vendorDetailResponse struct {
	VendorID   int64             `json:"vendorId"`
	VendorName string            `json:"vendorName"`
	CompanyReg string            `json:"companyReg"`
	Products   []productResponse `json:"products"`
}

type productRequest struct {
	VendorID    int64           `json:"vendorId"`
	Stock       *int            `json:"stock"`
	Price       decimal.Decimal `json:"price"`
	Location    string          `json:"location"`
	Description *string         `json:"description"`
}

type productResponse struct {
	ProductID   int64   `json:"productId"`
	VendorID    int64   `json:"vendorId"`
	VendorName  string  `json:"vendorName"`
	Stock       *int    `json:"stock"`
	Price       string  `json:"price"`
	Location    string  `json:"location"`
	Description *string `json:"description"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{UserID: u.ID, Username: u.Username, Email: u.Email}
}

func toPurchaseResponse(p domain.Purchase) purchaseResponse {
	return purchaseResponse{
		PurchaseID: p.ID,
		UserID:     p.UserID,
		ProductID:  p.ProductID,
		Quantity:   p.Quantity,
		UnitPrice:  domain.FormatMoney(p.UnitPrice),
		TotalPrice: domain.FormatMoney(p.TotalPrice),
		CreatedAt:  p.CreatedAt.UTC(),
	}
}

func toHistoryResponse(items []domain.PurchaseHistoryItem) []historyItemResponse {
	out := make([]historyItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, historyItemResponse{
			PurchaseID: it.ID,
			CreatedAt:  it.CreatedAt.UTC(),
			Quantity:   it.Quantity,
			UnitPrice:  domain.FormatMoney(it.UnitPrice),
			TotalPrice: domain.FormatMoney(it.TotalPrice),
			Product: historyProduct{
				ProductID:   it.ProductID,
				Description: it.ProductDescription,
				Location:    it.ProductLocation,
				Vendor:      it.VendorName,
			},
		})
	}
	return out
}

func toVendorResponse(v domain.Vendor) vendorResponse {
	return vendorResponse{
		VendorID:     v.ID,
		VendorName:   v.Name,
		CompanyReg:   v.CompanyReg,
		ProductCount: v.ProductCount,
	}
}

func toProductResponse(p domain.Product) productResponse {
	return productResponse{
		ProductID:   p.ID,
		VendorID:    p.VendorID,
		VendorName:  p.VendorName,
		Stock:       p.Stock,
		Price:       domain.FormatMoney(p.Price),
		Location:    p.Location,
		Description: p.Description,
	}
}

func toProductsResponse(products []domain.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, toProductResponse(p))
	}
	return out
}
