package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/storefront/internal/auth"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
	"github.com/vladislavdragonenkov/storefront/internal/service/cart"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/lifecycle"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const suiteWebhookSecret = "suite-upi-secret"

// recordingPublisher запоминает опубликованные события outbox.
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.OutboxMessage
}

func (p *recordingPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types(orderID string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.events {
		if e.AggregateID == orderID {
			out = append(out, e.EventType)
		}
	}
	return out
}

type suiteOrder struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AmountMinor int64  `json:"amountMinor"`
	Payment     *struct {
		TrustLevel string `json:"trustLevel"`
	} `json:"payment"`
}

// OrderLifecycleTestSuite прогоняет заказ через REST API, outbox и Kafka-callback.
type OrderLifecycleTestSuite struct {
	suite.Suite

	server    *httptest.Server
	verifier  *auth.Verifier
	worker    *outbox.Worker
	published *recordingPublisher
	callbacks kafka.MessageHandler

	customer string
	admin    string
}

func TestOrderLifecycleSuite(t *testing.T) {
	suite.Run(t, new(OrderLifecycleTestSuite))
}

func (s *OrderLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel)
	logger := baseLogger.WithField("component", "lifecycle-suite")

	upi, err := payment.NewRealtimePaymentAdapter(payment.RealtimeConfig{
		VPA:           "shop@upi",
		WebhookSecret: suiteWebhookSecret,
	}, logger)
	s.Require().NoError(err)

	products := catalog.NewStatic(catalog.SeedProducts()...)
	carts := memory.NewCartRepository()
	outboxRepo := memory.NewOutboxRepository()
	reg := prometheus.NewRegistry()

	controller, err := lifecycle.NewController(lifecycle.Dependencies{
		Orders:   memory.NewOrderRepository(),
		Timeline: memory.NewTimelineRepository(),
		Outbox:   outboxRepo,
		Catalog:  products,
		Carts:    carts,
		Payments: payment.NewRegistry(upi, payment.NewManualAdapter("")),
		Metrics:  metrics.NewLifecycleMetricsWithRegisterer(reg),
	}, lifecycle.Config{Currency: "INR", FeeRateBps: 200}, logger)
	s.Require().NoError(err)

	s.verifier, err = auth.NewVerifier("suite-jwt-secret")
	s.Require().NoError(err)

	router, err := httpapi.NewRouter(httpapi.Dependencies{
		Lifecycle:   controller,
		Cart:        cart.NewService(carts, products, "INR", logger),
		Verifier:    s.verifier,
		Idempotency: memory.NewIdempotencyRepository(),
		Metrics:     metrics.NewHTTPMetricsWithRegisterer(reg),
		Logger:      logger,
	})
	s.Require().NoError(err)
	s.server = httptest.NewServer(router)

	s.published = &recordingPublisher{}
	s.worker = outbox.NewWorker(outboxRepo, s.published,
		outbox.WithLogger(logger),
		outbox.WithMetrics(metrics.NewWorkerMetricsWithRegisterer(reg)),
	)
	s.callbacks = kafka.NewCallbackHandler(controller, logger)

	s.customer = s.issue(domain.Identity{UserID: "customer-123", Role: domain.RoleCustomer})
	s.admin = s.issue(domain.Identity{UserID: "ops", Role: domain.RoleAdmin})
}

func (s *OrderLifecycleTestSuite) TearDownTest() {
	s.server.Close()
}

func (s *OrderLifecycleTestSuite) issue(identity domain.Identity) string {
	token, err := s.verifier.Issue(identity, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *OrderLifecycleTestSuite) call(method, path, token string, body any, out any) int {
	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		payload = raw
	}
	req, err := http.NewRequest(method, s.server.URL+path, bytes.NewReader(payload))
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	if out != nil && resp.StatusCode < 300 {
		s.Require().NoError(json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

func (s *OrderLifecycleTestSuite) createOrder(method string) suiteOrder {
	var order suiteOrder
	code := s.call(http.MethodPost, "/api/orders", s.customer, map[string]any{
		"items": []map[string]any{
			{"productId": "fresh-apples", "qty": 1},
			{"productId": "bananas", "qty": 2},
		},
		"shippingAddress": domain.Address{Street: "1 MG Road", City: "Pune", Region: "MH", PostalCode: "411001", Country: "IN"},
		"paymentMethod":   method,
	}, &order)
	s.Require().Equal(http.StatusCreated, code)
	s.Require().Equal("CREATED", order.Status)
	return order
}

func (s *OrderLifecycleTestSuite) initiate(method, orderID string) {
	code := s.call(http.MethodPost, "/api/payments/"+method+"/initiate", s.customer, map[string]string{"orderId": orderID}, nil)
	s.Require().Equal(http.StatusOK, code)
}

func (s *OrderLifecycleTestSuite) relayCallback(orderID, txRef, status, secret string) error {
	msg := kafka.CallbackMessage{
		Provider:       string(domain.PaymentMethodRealtimePush),
		OrderID:        orderID,
		Status:         status,
		TransactionRef: txRef,
		ReceivedAt:     time.Now().UTC(),
	}
	if secret != "" {
		msg.Signature = payment.Sign(secret, orderID, txRef, status)
	}
	value, err := json.Marshal(msg)
	s.Require().NoError(err)
	return s.callbacks(context.Background(), &sarama.ConsumerMessage{
		Topic: kafka.TopicPaymentCallbacks,
		Key:   []byte(orderID),
		Value: value,
	})
}

func (s *OrderLifecycleTestSuite) fetch(orderID string) suiteOrder {
	var order suiteOrder
	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/api/orders/"+orderID, s.customer, nil, &order))
	return order
}

func (s *OrderLifecycleTestSuite) TestPaidOrderIsDelivered() {
	order := s.createOrder("realtime_push")
	// 19900 + 2*6900 = 33700, комиссия 2%.
	s.Require().Equal(int64(33700+674), order.AmountMinor)

	s.initiate("realtime_push", order.ID)
	s.Require().NoError(s.relayCallback(order.ID, "txn-1", "success", suiteWebhookSecret))

	paid := s.fetch(order.ID)
	s.Require().Equal("PAID", paid.Status)
	s.Require().NotNil(paid.Payment)
	s.Require().Equal(string(domain.TrustProviderSigned), paid.Payment.TrustLevel)

	// Повторный callback по финальному заказу ничего не меняет.
	s.Require().NoError(s.relayCallback(order.ID, "txn-1", "success", suiteWebhookSecret))

	for _, next := range []string{"fulfilling", "delivered"} {
		var advanced suiteOrder
		code := s.call(http.MethodPost, "/api/admin/orders/"+order.ID+"/advance", s.admin, map[string]string{"status": next}, &advanced)
		s.Require().Equal(http.StatusOK, code)
	}
	s.Require().Equal("DELIVERED", s.fetch(order.ID).Status)

	result := s.worker.ProcessOnce(context.Background())
	s.Require().Zero(result.Failed)
	require.Equal(s.T(), []string{
		domain.EventOrderCreated,
		domain.EventPaymentInitiated,
		domain.EventOrderPaid,
		domain.EventOrderStatusChanged,
		domain.EventOrderStatusChanged,
	}, s.published.types(order.ID))

	s.Require().Zero(s.worker.ProcessOnce(context.Background()).Sent)
}

func (s *OrderLifecycleTestSuite) TestFailedPaymentCanBeRetried() {
	order := s.createOrder("realtime_push")
	s.initiate("realtime_push", order.ID)

	s.Require().NoError(s.relayCallback(order.ID, "txn-declined", "failed", suiteWebhookSecret))
	s.Require().Equal("PAYMENT_FAILED", s.fetch(order.ID).Status)

	s.initiate("realtime_push", order.ID)
	s.Require().Equal("AWAITING_PAYMENT", s.fetch(order.ID).Status)

	s.Require().NoError(s.relayCallback(order.ID, "txn-2", "success", suiteWebhookSecret))
	s.Require().Equal("PAID", s.fetch(order.ID).Status)
}

func (s *OrderLifecycleTestSuite) TestUnsignedRelayedCallbackIsRejected() {
	order := s.createOrder("realtime_push")
	s.initiate("realtime_push", order.ID)

	err := s.relayCallback(order.ID, "txn-1", "success", "")
	s.Require().Error(err)
	s.Require().True(kafka.IsPermanent(err))

	err = s.relayCallback(order.ID, "txn-1", "success", "wrong-secret")
	s.Require().Error(err)
	s.Require().True(kafka.IsPermanent(err))

	s.Require().Equal("AWAITING_PAYMENT", s.fetch(order.ID).Status)
}

func (s *OrderLifecycleTestSuite) TestCancelBeforePayment() {
	order := s.createOrder("cash_on_delivery")
	s.initiate("cash_on_delivery", order.ID)

	var cancelled suiteOrder
	code := s.call(http.MethodPost, "/api/orders/"+order.ID+"/cancel", s.customer, map[string]string{"reason": "changed mind"}, &cancelled)
	s.Require().Equal(http.StatusOK, code)
	s.Require().Equal("CANCELLED", cancelled.Status)

	code = s.call(http.MethodPost, "/api/orders/"+order.ID+"/cancel", s.customer, map[string]string{"reason": "again"}, nil)
	s.Require().Equal(http.StatusConflict, code)

	s.worker.ProcessOnce(context.Background())
	s.Require().Contains(s.published.types(order.ID), domain.EventOrderCanceled)
}

func (s *OrderLifecycleTestSuite) TestOtherCustomerCannotSeeOrder() {
	order := s.createOrder("cash_on_delivery")
	stranger := s.issue(domain.Identity{UserID: "stranger", Role: domain.RoleCustomer})

	code := s.call(http.MethodGet, "/api/orders/"+order.ID, stranger, nil, nil)
	s.Require().Contains([]int{http.StatusForbidden, http.StatusNotFound}, code)

	s.Require().Equal(http.StatusOK, s.call(http.MethodGet, "/api/orders/"+order.ID, s.admin, nil, nil))
}
