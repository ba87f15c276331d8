package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultCardTimeout = 10 * time.Second
	maxGatewayBody     = 1 << 20
)

// CardGatewayConfig — настройки hosted-шлюза карточных платежей.
type CardGatewayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	// WebhookSecret подписывает callback-и. Пустое значение означает KeySecret.
	WebhookSecret string
	Timeout       time.Duration
	Retry         RetryConfig
	// BreakerFailures и BreakerReset настраивают circuit breaker.
	BreakerFailures int
	BreakerReset    time.Duration
}

// CardGatewayAdapter создаёт заказ в шлюзе и проверяет подпись checkout-а.
type CardGatewayAdapter struct {
	cfg     CardGatewayConfig
	client  *http.Client
	breaker *CircuitBreaker
	logger  *log.Entry
}

type gatewayOrderRequest struct {
	Amount         int64             `json:"amount"`
	Currency       string            `json:"currency"`
	Receipt        string            `json:"receipt"`
	PaymentCapture int               `json:"payment_capture"`
	Notes          map[string]string `json:"notes"`
}

type gatewayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// NewCardGatewayAdapter создаёт адаптер. Без ключей провайдер считается не настроенным.
func NewCardGatewayAdapter(cfg CardGatewayConfig, client *http.Client, logger *log.Entry) (*CardGatewayAdapter, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" || strings.TrimSpace(cfg.KeyID) == "" || strings.TrimSpace(cfg.KeySecret) == "" {
		return nil, domain.NewError(domain.ErrProviderNotConfigured, "payment.card", "card gateway credentials are not configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultCardTimeout
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	logger = logger.WithField("provider", string(domain.PaymentMethodCard))

	return &CardGatewayAdapter{
		cfg:     cfg,
		client:  client,
		breaker: NewCircuitBreaker(cfg.BreakerFailures, cfg.BreakerReset, logger),
		logger:  logger,
	}, nil
}

func (a *CardGatewayAdapter) Method() domain.PaymentMethod { return domain.PaymentMethodCard }

func (a *CardGatewayAdapter) TrustLevel() domain.TrustLevel { return domain.TrustProviderSigned }

// Initiate регистрирует заказ в шлюзе с повторами и circuit breaker.
func (a *CardGatewayAdapter) Initiate(ctx context.Context, order domain.Order) (Handle, error) {
	const op = "payment.card.initiate"

	var created gatewayOrderResponse
	err := Retry(ctx, a.cfg.Retry, a.logger, op, func(ctx context.Context) error {
		return a.breaker.Execute(op, func() error {
			resp, err := a.createOrder(ctx, order)
			if err != nil {
				return err
			}
			created = resp
			return nil
		})
	})
	if err != nil {
		a.logger.WithError(err).WithField("order_id", order.ID).Error("card gateway order creation failed")
		return Handle{}, err
	}

	currency := created.Currency
	if currency == "" {
		currency = order.Currency
	}
	return Handle{
		Provider:    domain.PaymentMethodCard,
		ProviderRef: created.ID,
		AmountMinor: order.AmountMinor,
		Currency:    currency,
		Fields: map[string]string{
			"key_id":  a.cfg.KeyID,
			"amount":  formatMinor(order.AmountMinor),
			"receipt": receiptFor(order.ID),
		},
	}, nil
}

func (a *CardGatewayAdapter) createOrder(ctx context.Context, order domain.Order) (gatewayOrderResponse, error) {
	const op = "payment.card.create_order"

	body, err := json.Marshal(gatewayOrderRequest{
		Amount:         order.AmountMinor,
		Currency:       order.Currency,
		Receipt:        receiptFor(order.ID),
		PaymentCapture: 1,
		Notes:          map[string]string{"order_id": order.ID},
	})
	if err != nil {
		return gatewayOrderResponse{}, domain.WrapError(domain.ErrProvider, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/orders", bytes.NewReader(body))
	if err != nil {
		return gatewayOrderResponse{}, domain.WrapError(domain.ErrProvider, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.cfg.KeyID, a.cfg.KeySecret)

	resp, err := a.client.Do(req)
	if err != nil {
		return gatewayOrderResponse{}, &domain.Error{Kind: domain.ErrProvider, Op: op, Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayBody))
	if err != nil {
		return gatewayOrderResponse{}, &domain.Error{Kind: domain.ErrProvider, Op: op, Err: err, Retryable: true}
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return gatewayOrderResponse{}, &domain.Error{
			Kind:      domain.ErrProvider,
			Op:        op,
			Msg:       fmt.Sprintf("card gateway responded with status %d", resp.StatusCode),
			Retryable: true,
		}
	case resp.StatusCode >= 400:
		return gatewayOrderResponse{}, domain.NewError(domain.ErrProvider, op,
			fmt.Sprintf("card gateway rejected order: status %d", resp.StatusCode))
	}

	var created gatewayOrderResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		return gatewayOrderResponse{}, domain.WrapError(domain.ErrProvider, op, fmt.Errorf("decode gateway response: %w", err))
	}
	if created.ID == "" {
		return gatewayOrderResponse{}, domain.NewError(domain.ErrProvider, op, "card gateway response has no order id")
	}
	if created.Amount != 0 && created.Amount != order.AmountMinor {
		return gatewayOrderResponse{}, domain.NewError(domain.ErrProvider, op,
			fmt.Sprintf("card gateway amount %d differs from order amount %d", created.Amount, order.AmountMinor))
	}
	return created, nil
}

// Verify проверяет подпись provider_order_id|provider_payment_id[|status].
func (a *CardGatewayAdapter) Verify(_ context.Context, order domain.Order, payload CallbackPayload) (VerificationResult, error) {
	const op = "payment.card.verify"

	result := VerificationResult{OrderID: order.ID, TrustLevel: domain.TrustProviderSigned}

	providerOrderID := strings.TrimSpace(payload.ProviderOrderID)
	providerPaymentID := strings.TrimSpace(payload.ProviderPaymentID)
	if providerOrderID == "" || providerPaymentID == "" || strings.TrimSpace(payload.Signature) == "" {
		return result, domain.ErrCallbackMalformed
	}
	if order.Intent == nil || order.Intent.ProviderRef != providerOrderID {
		return result, domain.NewError(domain.ErrVerification, op, "provider order id does not match payment intent")
	}

	// Подтверждение checkout-а приходит без статуса и подписывает пару id.
	// Статус от webhook-а обязан входить в подпись третьей частью.
	parts := []string{providerOrderID, providerPaymentID}
	if payload.Status != "" {
		parts = append(parts, payload.Status)
	}
	if err := VerifySignature(a.webhookSecret(), payload.Signature, parts...); err != nil {
		return result, err
	}

	succeeded, recognized := statusSucceeded(payload.Status)
	if !recognized {
		return result, domain.ErrCallbackMalformed
	}

	result.Succeeded = succeeded
	result.ProviderReference = providerPaymentID
	result.ProviderOrderID = providerOrderID
	return result, nil
}

func (a *CardGatewayAdapter) webhookSecret() string {
	if a.cfg.WebhookSecret != "" {
		return a.cfg.WebhookSecret
	}
	return a.cfg.KeySecret
}

func receiptFor(orderID string) string {
	return "order_rcpt_" + orderID
}

var _ Adapter = (*CardGatewayAdapter)(nil)
