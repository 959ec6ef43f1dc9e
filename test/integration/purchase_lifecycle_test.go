package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/marketplace/internal/credential"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/service/auth"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/purchase"
	"github.com/vladislavdragonenkov/marketplace/internal/service/registration"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/transport/httpapi"
)

// PurchaseLifecycleTestSuite гоняет покупки через настоящий HTTP-сервер
// поверх in-memory хранилища и outbox.
type PurchaseLifecycleTestSuite struct {
	suite.Suite
	logger *log.Entry
	store  *memory.Store
	outbox *memory.OutboxRepository
	server *httptest.Server
	client *http.Client
}

type productView struct {
	ProductID int64  `json:"productId"`
	Stock     *int   `json:"stock"`
	Price     string `json:"price"`
}

type purchaseView struct {
	PurchaseID int64  `json:"purchaseId"`
	Quantity   int    `json:"quantity"`
	UnitPrice  string `json:"unitPrice"`
	TotalPrice string `json:"totalPrice"`
}

func (suite *PurchaseLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	baseLogger.SetOutput(io.Discard)
	suite.logger = baseLogger.WithField("component", "integration-test")

	suite.outbox = memory.NewOutboxRepository()
	suite.store = memory.NewStore(memory.WithOutbox(suite.outbox))

	creds := credential.NewService()
	tokens, err := auth.NewTokenIssuer("integration-secret", time.Hour)
	suite.Require().NoError(err)

	api := httpapi.NewServer(httpapi.Deps{
		Purchases: purchase.NewProcessor(suite.store,
			purchase.WithMaxAttempts(10),
			purchase.WithRetryBaseDelay(0),
			purchase.WithLogger(suite.logger),
		),
		History:      suite.store,
		Registration: registration.NewService(suite.store, creds, registration.WithLogger(suite.logger)),
		Auth:         auth.NewService(suite.store, creds, tokens, auth.WithLogger(suite.logger)),
		Catalog:      catalog.NewService(suite.store, suite.logger),
		Logger:       suite.logger,
	})
	suite.server = httptest.NewServer(api.Handler())
	suite.client = suite.server.Client()
}

func (suite *PurchaseLifecycleTestSuite) TearDownTest() {
	suite.server.Close()
}

func (suite *PurchaseLifecycleTestSuite) TestPurchaseLifecycle() {
	product := suite.createProduct("Stellenbosch Cellars", intPtr(10), "12.50")
	buyerID, token := suite.registerAndLogin("thandi")

	// 1. Покупка уменьшает остаток и фиксирует цену
	status, body := suite.call(http.MethodPost, "/purchases", map[string]any{
		"userId": buyerID, "productId": product.ProductID, "quantity": 3,
	}, "")
	suite.Require().Equal(http.StatusCreated, status, string(body))
	var bought purchaseView
	suite.Require().NoError(json.Unmarshal(body, &bought))
	suite.Equal("12.50", bought.UnitPrice)
	suite.Equal("37.50", bought.TotalPrice)

	suite.Equal(7, *suite.getProduct(product.ProductID).Stock)

	// 2. Больше, чем осталось, купить нельзя; остаток не меняется
	status, _ = suite.call(http.MethodPost, "/purchases", map[string]any{
		"userId": buyerID, "productId": product.ProductID, "quantity": 8,
	}, "")
	suite.Equal(http.StatusConflict, status)
	suite.Equal(7, *suite.getProduct(product.ProductID).Stock)

	// 3. История видна только владельцу
	status, body = suite.call(http.MethodGet, fmt.Sprintf("/users/%d/purchases", buyerID), nil, token)
	suite.Require().Equal(http.StatusOK, status, string(body))
	var history []purchaseView
	suite.Require().NoError(json.Unmarshal(body, &history))
	suite.Require().Len(history, 1)
	suite.Equal(bought.PurchaseID, history[0].PurchaseID)

	_, otherToken := suite.registerAndLogin("sipho")
	status, _ = suite.call(http.MethodGet, fmt.Sprintf("/users/%d/purchases", buyerID), nil, otherToken)
	suite.Equal(http.StatusForbidden, status)

	// 4. Событие покупки уходит через outbox в Kafka
	suite.Require().Len(suite.outbox.Pending(), 1)

	producer := mocks.NewSyncProducer(suite.T(), nil)
	var published []byte
	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		suite.Equal(kafka.TopicPurchaseEvents, msg.Topic)
		value, err := msg.Value.Encode()
		published = value
		return err
	})
	worker := outbox.NewWorker(suite.outbox,
		kafka.NewOutboxPublisher(kafka.NewProducerFromSync(producer, suite.logger), kafka.TopicPurchaseEvents),
		outbox.WithLogger(suite.logger),
		outbox.WithRetryBaseDelay(0),
	)
	suite.Equal(1, worker.ProcessOnce(context.Background()))
	suite.Empty(suite.outbox.Pending())
	suite.Require().NoError(producer.Close())

	_, payload, err := kafka.ParsePurchaseCreated(&sarama.ConsumerMessage{Value: published})
	suite.Require().NoError(err)
	suite.Equal(bought.PurchaseID, payload.PurchaseID)
	suite.Equal(buyerID, payload.UserID)
	suite.Equal("37.50", payload.TotalPrice)
	suite.Require().NotNil(payload.StockAfter)
	suite.Equal(7, *payload.StockAfter)
}

func (suite *PurchaseLifecycleTestSuite) TestConcurrentPurchasesNeverOversell() {
	const (
		stock  = 5
		buyers = 20
	)
	product := suite.createProduct("Karoo Farms", intPtr(stock), "3.00")

	ids := make([]int64, buyers)
	for i := range ids {
		ids[i], _ = suite.registerAndLogin(fmt.Sprintf("buyer%02d", i))
	}

	statuses := make([]int, buyers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			statuses[i], _ = suite.call(http.MethodPost, "/purchases", map[string]any{
				"userId": ids[i], "productId": product.ProductID, "quantity": 1,
			}, "")
		}(i)
	}
	close(start)
	wg.Wait()

	counts := map[int]int{}
	for _, s := range statuses {
		counts[s]++
	}
	suite.Equal(stock, counts[http.StatusCreated], "statuses: %v", counts)
	suite.Equal(buyers-stock, counts[http.StatusConflict], "statuses: %v", counts)

	final := suite.getProduct(product.ProductID)
	suite.Require().NotNil(final.Stock)
	suite.Equal(0, *final.Stock)
	suite.Len(suite.outbox.Pending(), stock)
}

func (suite *PurchaseLifecycleTestSuite) TestUnlimitedStockAcceptsEveryBuyer() {
	product := suite.createProduct("Digital Goods", nil, "0.99")
	buyerID, _ := suite.registerAndLogin("lerato")

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _ := suite.call(http.MethodPost, "/purchases", map[string]any{
				"userId": buyerID, "productId": product.ProductID, "quantity": 100,
			}, "")
			if status == http.StatusCreated {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	suite.Equal(10, created)
	suite.Nil(suite.getProduct(product.ProductID).Stock)
}

func (suite *PurchaseLifecycleTestSuite) TestUnknownReferences() {
	product := suite.createProduct("Drakensberg Crafts", intPtr(1), "5.00")

	status, _ := suite.call(http.MethodPost, "/purchases", map[string]any{
		"userId": 999, "productId": product.ProductID, "quantity": 1,
	}, "")
	suite.Equal(http.StatusNotFound, status)

	buyerID, _ := suite.registerAndLogin("naledi")
	status, _ = suite.call(http.MethodPost, "/purchases", map[string]any{
		"userId": buyerID, "productId": 999, "quantity": 1,
	}, "")
	suite.Equal(http.StatusNotFound, status)

	suite.Equal(1, *suite.getProduct(product.ProductID).Stock)
	suite.Empty(suite.outbox.Pending())
}

func (suite *PurchaseLifecycleTestSuite) createProduct(vendor string, stock *int, price string) productView {
	status, body := suite.call(http.MethodPost, "/vendors", map[string]any{
		"vendorName": vendor, "companyReg": "REG-" + vendor,
	}, "")
	suite.Require().Equal(http.StatusCreated, status, string(body))
	var v struct {
		VendorID int64 `json:"vendorId"`
	}
	suite.Require().NoError(json.Unmarshal(body, &v))

	status, body = suite.call(http.MethodPost, "/products", map[string]any{
		"vendorId": v.VendorID, "stock": stock, "price": price, "location": "Durban",
	}, "")
	suite.Require().Equal(http.StatusCreated, status, string(body))
	var p productView
	suite.Require().NoError(json.Unmarshal(body, &p))
	return p
}

func (suite *PurchaseLifecycleTestSuite) getProduct(id int64) productView {
	status, body := suite.call(http.MethodGet, fmt.Sprintf("/products/%d", id), nil, "")
	suite.Require().Equal(http.StatusOK, status, string(body))
	var p productView
	suite.Require().NoError(json.Unmarshal(body, &p))
	return p
}

func (suite *PurchaseLifecycleTestSuite) registerAndLogin(username string) (int64, string) {
	password := "secret-" + username
	status, body := suite.call(http.MethodPost, "/auth/register", map[string]any{
		"username": username, "email": username + "@example.co.za", "password": password,
	}, "")
	suite.Require().Equal(http.StatusCreated, status, string(body))
	var user struct {
		UserID int64 `json:"userId"`
	}
	suite.Require().NoError(json.Unmarshal(body, &user))

	status, body = suite.call(http.MethodPost, "/auth/login", map[string]any{
		"usernameOrEmail": username, "password": password,
	}, "")
	suite.Require().Equal(http.StatusOK, status, string(body))
	var login struct {
		Token string `json:"token"`
	}
	suite.Require().NoError(json.Unmarshal(body, &login))
	return user.UserID, login.Token
}

// call не использует suite.Require, чтобы его можно было звать из горутин.
func (suite *PurchaseLifecycleTestSuite) call(method, path string, in any, token string) (int, []byte) {
	var reader io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return 0, []byte(err.Error())
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, suite.server.URL+path, reader)
	if err != nil {
		return 0, []byte(err.Error())
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := suite.client.Do(req)
	if err != nil {
		return 0, []byte(err.Error())
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func intPtr(v int) *int { return &v }

func TestPurchaseLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PurchaseLifecycleTestSuite))
}
