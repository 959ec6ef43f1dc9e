package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/purchase"
	"github.com/vladislavdragonenkov/marketplace/internal/service/registration"
)

func (s *Server) register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}

	user, err := s.deps.Registration.Register(c.Request().Context(), registration.Request{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/users/%d", user.ID))
	return c.JSON(http.StatusCreated, toUserResponse(user))
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}

	result, err := s.deps.Auth.Login(c.Request().Context(), req.login(), req.Password)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusOK, loginResponse{
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt.UTC(),
		User:      toUserResponse(result.User),
	})
}

func (s *Server) createPurchase(c echo.Context) error {
	var req purchaseRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}

	p, err := s.deps.Purchases.Purchase(c.Request().Context(), purchase.Request{
		UserID:    req.UserID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(http.StatusCreated, toPurchaseResponse(p))
}

func (s *Server) listUserPurchases(c echo.Context) error {
	userID, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}
	caller, ok := userIDFromContext(c)
	if !ok {
		return errorJSON(c, http.StatusUnauthorized, "unauthorized")
	}
	if caller != userID {
		return errorJSON(c, http.StatusForbidden, "forbidden")
	}

	items, err := s.deps.History.ListUserPurchases(c.Request().Context(), userID)
	if err != nil {
		return s.writeError(c, fmt.Errorf("%w: list purchases: %w", domain.ErrInternal, err))
	}
	return c.JSON(http.StatusOK, toHistoryResponse(items))
}

func (s *Server) listVendors(c echo.Context) error {
	vendors, err := s.deps.Catalog.ListVendors(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return s.writeError(c, err)
	}
	out := make([]vendorResponse, 0, len(vendors))
	for _, v := range vendors {
		out = append(out, toVendorResponse(v))
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getVendor(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}

	vendor, products, err := s.deps.Catalog.GetVendor(c.Request().Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, vendorDetailResponse{
		VendorID:   vendor.ID,
		VendorName: vendor.Name,
		CompanyReg: vendor.CompanyReg,
		Products:   toProductsResponse(products),
	})
}

func (s *Server) createVendor(c echo.Context) error {
	var req vendorRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}

	vendor, err := s.deps.Catalog.CreateVendor(c.Request().Context(), req.VendorName, req.CompanyReg)
	if err != nil {
		return s.writeError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/vendors/%d", vendor.ID))
	return c.JSON(http.StatusCreated, toVendorResponse(vendor))
}

func (s *Server) listProducts(c echo.Context) error {
	filter, msg := productFilterFromQuery(c)
	if msg != "" {
		return errorJSON(c, http.StatusBadRequest, msg)
	}

	products, err := s.deps.Catalog.ListProducts(c.Request().Context(), filter)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductsResponse(products))
}

func (s *Server) getProduct(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid id")
	}

	product, err := s.deps.Catalog.GetProduct(c.Request().Context(), id)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(product))
}

func (s *Server) createProduct(c echo.Context) error {
	var req productRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid body")
	}

	product, err := s.deps.Catalog.CreateProduct(c.Request().Context(), catalog.ProductInput{
		VendorID:    req.VendorID,
		Stock:       req.Stock,
		Price:       req.Price,
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		return s.writeError(c, err)
	}

	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/products/%d", product.ID))
	return c.JSON(http.StatusCreated, toProductResponse(product))
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", c.Param("id"))
	}
	return id, nil
}

// productFilterFromQuery разбирает vendorId, location, minPrice, maxPrice и search.
// Непустое сообщение означает ошибку клиента.
func productFilterFromQuery(c echo.Context) (domain.ProductFilter, string) {
	filter := domain.ProductFilter{
		Location: strings.TrimSpace(c.QueryParam("location")),
		Search:   strings.TrimSpace(c.QueryParam("search")),
	}

	if v := c.QueryParam("vendorId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, "invalid vendorId"
		}
		filter.VendorID = &id
	}
	if v := c.QueryParam("minPrice"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return filter, "invalid minPrice"
		}
		filter.MinPrice = &d
	}
	if v := c.QueryParam("maxPrice"); v != "" {
		d, err := decimal.NewFromString(v)
		if err != nil {
			return filter, "invalid maxPrice"
		}
		filter.MaxPrice = &d
	}
	return filter, ""
}
