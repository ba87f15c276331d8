package payment

import (
	"context"
	"strings"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultManualInstructions = "Pay the courier in cash on delivery. Keep the receipt."

// ManualAdapter — оплата наличными при доставке. Оплату фиксирует оператор.
type ManualAdapter struct {
	instructions string
}

// NewManualAdapter создаёт адаптер с инструкцией для покупателя.
func NewManualAdapter(instructions string) *ManualAdapter {
	if strings.TrimSpace(instructions) == "" {
		instructions = defaultManualInstructions
	}
	return &ManualAdapter{instructions: instructions}
}

func (a *ManualAdapter) Method() domain.PaymentMethod { return domain.PaymentMethodCashOnDelivery }

func (a *ManualAdapter) TrustLevel() domain.TrustLevel { return domain.TrustManual }

func (a *ManualAdapter) Initiate(_ context.Context, order domain.Order) (Handle, error) {
	return Handle{
		Provider:    domain.PaymentMethodCashOnDelivery,
		ProviderRef: "cod_" + order.ID,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		Fields: map[string]string{
			"instructions": a.instructions,
			"amount":       formatMajor(order.AmountMinor),
		},
	}, nil
}

// Verify принимает номер квитанции, записанный оператором при получении наличных.
func (a *ManualAdapter) Verify(_ context.Context, order domain.Order, payload CallbackPayload) (VerificationResult, error) {
	result := VerificationResult{OrderID: order.ID, TrustLevel: domain.TrustManual}

	receipt := strings.TrimSpace(payload.ReceiptRef)
	if receipt == "" {
		return result, domain.ErrCallbackMalformed
	}
	succeeded, recognized := statusSucceeded(payload.Status)
	if !recognized {
		return result, domain.ErrCallbackMalformed
	}

	result.Succeeded = succeeded
	result.ProviderReference = receipt
	if order.Intent != nil {
		result.ProviderOrderID = order.Intent.ProviderRef
	}
	return result, nil
}

var _ Adapter = (*ManualAdapter)(nil)
