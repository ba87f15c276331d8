// Package payment содержит адаптеры платёжных провайдеров и их реестр.
package payment

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Handle — данные, которые клиент получает для завершения оплаты.
type Handle struct {
	Provider    domain.PaymentMethod
	ProviderRef string
	AmountMinor int64
	Currency    string
	// Fields — поля конкретного провайдера (key_id, upi_uri, instructions).
	Fields map[string]string
}

// CallbackPayload — нормализованные поля callback-а провайдера или подтверждения клиента.
type CallbackPayload struct {
	OrderID           string
	ProviderOrderID   string
	ProviderPaymentID string
	Signature         string
	Status            string
	TransactionRef    string
	ReceiptRef        string
}

// VerificationResult — итог проверки callback-а.
type VerificationResult struct {
	OrderID           string
	Succeeded         bool
	ProviderReference string
	ProviderOrderID   string
	TrustLevel        domain.TrustLevel
}

// Adapter — контракт провайдера. Реализации: карта, push-платёж, наличные.
type Adapter interface {
	Method() domain.PaymentMethod
	TrustLevel() domain.TrustLevel
	Initiate(ctx context.Context, order domain.Order) (Handle, error)
	Verify(ctx context.Context, order domain.Order, payload CallbackPayload) (VerificationResult, error)
}

// Intent превращает handle в сохраняемый на заказе intent.
func (h Handle) Intent(now time.Time) *domain.PaymentIntent {
	fields := make(map[string]string, len(h.Fields))
	for k, v := range h.Fields {
		fields[k] = v
	}
	return &domain.PaymentIntent{
		Method:      h.Provider,
		ProviderRef: h.ProviderRef,
		AmountMinor: h.AmountMinor,
		Currency:    h.Currency,
		Handle:      fields,
		CreatedAt:   now,
	}
}

// HandleFromIntent восстанавливает handle из сохранённого intent для повторного ответа.
func HandleFromIntent(intent domain.PaymentIntent) Handle {
	fields := make(map[string]string, len(intent.Handle))
	for k, v := range intent.Handle {
		fields[k] = v
	}
	return Handle{
		Provider:    intent.Method,
		ProviderRef: intent.ProviderRef,
		AmountMinor: intent.AmountMinor,
		Currency:    intent.Currency,
		Fields:      fields,
	}
}

// statusSucceeded разбирает статус провайдера: (успех, статус распознан).
// Пустой статус трактуется как успех: так приходят подтверждения checkout-формы.
func statusSucceeded(status string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "", "success", "succeeded", "captured", "paid", "authorized":
		return true, true
	case "failed", "failure", "declined", "cancelled", "canceled":
		return false, true
	default:
		return false, false
	}
}

// ReportsFailure сообщает, что статус callback-а означает отказ провайдера.
func ReportsFailure(status string) bool {
	succeeded, recognized := statusSucceeded(status)
	return recognized && !succeeded
}

func formatMinor(amountMinor int64) string {
	return strconv.FormatInt(amountMinor, 10)
}

// formatMajor печатает сумму в основных единицах с двумя знаками после точки.
func formatMajor(amountMinor int64) string {
	return decimal.New(amountMinor, -2).StringFixed(2)
}

// IsTimeout сообщает, вызвана ли ошибка истечением времени ожидания провайдера.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
