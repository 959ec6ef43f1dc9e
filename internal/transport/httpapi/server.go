// Package httpapi публикует сервисы маркетплейса по HTTP (echo).
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/auth"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/purchase"
	"github.com/vladislavdragonenkov/marketplace/internal/service/registration"
)

// Purchaser совершает покупку.
type Purchaser interface {
	Purchase(ctx context.Context, req purchase.Request) (domain.Purchase, error)
}

// PurchaseHistory читает покупки пользователя.
type PurchaseHistory interface {
	ListUserPurchases(ctx context.Context, userID int64) ([]domain.PurchaseHistoryItem, error)
}

// Registrar регистрирует пользователей.
type Registrar interface {
	Register(ctx context.Context, req registration.Request) (domain.User, error)
}

// Authenticator выполняет вход и проверяет bearer-токены.
type Authenticator interface {
	Login(ctx context.Context, login, password string) (auth.Result, error)
	Authenticate(token string) (int64, error)
}

// Catalog — операции над продавцами и товарами.
type Catalog interface {
	ListVendors(ctx context.Context, query string) ([]domain.Vendor, error)
	GetVendor(ctx context.Context, id int64) (domain.Vendor, []domain.Product, error)
	CreateVendor(ctx context.Context, name, companyReg string) (domain.Vendor, error)
	ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (domain.Product, error)
	CreateProduct(ctx context.Context, in catalog.ProductInput) (domain.Product, error)
}

// Deps собирает зависимости HTTP API.
type Deps struct {
	Purchases    Purchaser
	History      PurchaseHistory
	Registration Registrar
	Auth         Authenticator
	Catalog      Catalog
	Logger       *log.Entry
}

// Server держит обработчики и echo-инстанс.
type Server struct {
	deps   Deps
	logger *log.Entry
	echo   *echo.Echo
}

// NewServer собирает echo-инстанс со всеми маршрутами.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = log.WithField("component", "http")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)
	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	s := &Server{deps: deps, logger: logger, echo: e}
	s.registerRoutes()
	return s
}

// Handler возвращает http.Handler для http.Server и httptest.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Echo возвращает echo-инстанс.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET("/health", health)

	e.POST("/auth/register", s.register)
	e.POST("/auth/login", s.login)

	e.POST("/purchases", s.createPurchase)
	e.GET("/users/:id/purchases", s.listUserPurchases, bearerAuth(s.deps.Auth))

	e.GET("/vendors", s.listVendors)
	e.GET("/vendors/:id", s.getVendor)
	e.POST("/vendors", s.createVendor)

	e.GET("/products", s.listProducts)
	e.GET("/products/:id", s.getProduct)
	e.POST("/products", s.createProduct)
}

func health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func requestLogger(logger *log.Entry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			started := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.WithFields(log.Fields{
				"method":      c.Request().Method,
				"path":        c.Path(),
				"status":      c.Response().Status,
				"duration_ms": time.Since(started).Milliseconds(),
			}).Debug("http request")
			return nil
		}
	}
}

// errorHandler отдаёт ошибки echo (404 маршрута, 405, panic) в формате {"error": ...}.
func errorHandler(logger *log.Entry) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		message := internalMessage
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			message = http.StatusText(he.Code)
		} else {
			logger.WithError(err).Error("unhandled http error")
		}
		if jsonErr := c.JSON(status, ErrorResponse{Error: message}); jsonErr != nil {
			logger.WithError(jsonErr).Warn("failed to write error response")
		}
	}
}
