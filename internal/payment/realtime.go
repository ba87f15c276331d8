package payment

import (
	"context"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// RealtimeConfig — настройки push-платежей (UPI).
type RealtimeConfig struct {
	VPA          string
	MerchantName string
	// WebhookSecret включает проверку подписи. Без него подтверждение идёт от клиента.
	WebhookSecret string
}

// RealtimePaymentAdapter строит платёжную ссылку UPI и принимает подтверждения.
type RealtimePaymentAdapter struct {
	cfg    RealtimeConfig
	logger *log.Entry
}

// NewRealtimePaymentAdapter создаёт адаптер. Без VPA провайдер считается не настроенным.
func NewRealtimePaymentAdapter(cfg RealtimeConfig, logger *log.Entry) (*RealtimePaymentAdapter, error) {
	cfg.VPA = strings.TrimSpace(cfg.VPA)
	if cfg.VPA == "" {
		return nil, domain.NewError(domain.ErrProviderNotConfigured, "payment.realtime", "realtime payee address is not configured")
	}
	if strings.TrimSpace(cfg.MerchantName) == "" {
		cfg.MerchantName = "Storefront"
	}
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &RealtimePaymentAdapter{
		cfg:    cfg,
		logger: logger.WithField("provider", string(domain.PaymentMethodRealtimePush)),
	}, nil
}

func (a *RealtimePaymentAdapter) Method() domain.PaymentMethod {
	return domain.PaymentMethodRealtimePush
}

// TrustLevel понижается до client_asserted, если подпись провайдера не настроена.
func (a *RealtimePaymentAdapter) TrustLevel() domain.TrustLevel {
	if a.cfg.WebhookSecret != "" {
		return domain.TrustProviderSigned
	}
	return domain.TrustClientAsserted
}

// Initiate не ходит в сеть: клиент получает ссылку upi://pay.
func (a *RealtimePaymentAdapter) Initiate(_ context.Context, order domain.Order) (Handle, error) {
	uri := a.paymentURI(order)
	return Handle{
		Provider:    domain.PaymentMethodRealtimePush,
		ProviderRef: order.ID,
		AmountMinor: order.AmountMinor,
		Currency:    order.Currency,
		Fields: map[string]string{
			"upi_uri":       uri,
			"vpa":           a.cfg.VPA,
			"merchant_name": a.cfg.MerchantName,
			"amount":        formatMajor(order.AmountMinor),
		},
	}, nil
}

func (a *RealtimePaymentAdapter) paymentURI(order domain.Order) string {
	params := []struct{ key, value string }{
		{"pa", a.cfg.VPA},
		{"pn", a.cfg.MerchantName},
		{"am", formatMajor(order.AmountMinor)},
		{"cu", order.Currency},
		{"tn", "Order " + order.ID},
		{"tr", order.ID},
	}

	var b strings.Builder
	b.WriteString("upi://pay?")
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(upiEscape(p.value))
	}
	return b.String()
}

// upiEscape кодирует пробелы как %20: UPI-приложения не понимают "+".
func upiEscape(v string) string {
	return strings.ReplaceAll(url.QueryEscape(v), "+", "%20")
}

// Verify проверяет подпись order_id|transaction_ref|status или принимает подтверждение клиента.
func (a *RealtimePaymentAdapter) Verify(_ context.Context, order domain.Order, payload CallbackPayload) (VerificationResult, error) {
	const op = "payment.realtime.verify"

	result := VerificationResult{OrderID: order.ID, TrustLevel: a.TrustLevel()}

	orderID := strings.TrimSpace(payload.OrderID)
	if orderID == "" {
		return result, domain.ErrCallbackMalformed
	}
	if orderID != order.ID {
		return result, domain.NewError(domain.ErrVerification, op, "callback order id does not match order")
	}

	succeeded, recognized := statusSucceeded(payload.Status)
	if !recognized {
		return result, domain.ErrCallbackMalformed
	}

	txRef := strings.TrimSpace(payload.TransactionRef)
	if a.cfg.WebhookSecret != "" {
		if txRef == "" || strings.TrimSpace(payload.Signature) == "" {
			return result, domain.ErrCallbackMalformed
		}
		if err := VerifySignature(a.cfg.WebhookSecret, payload.Signature, orderID, txRef, payload.Status); err != nil {
			return result, err
		}
	} else {
		a.logger.WithFields(log.Fields{
			"order_id":        order.ID,
			"transaction_ref": txRef,
			"trust_level":     string(domain.TrustClientAsserted),
		}).Warn("accepting unsigned realtime payment confirmation")
	}

	result.Succeeded = succeeded
	result.ProviderReference = txRef
	result.ProviderOrderID = order.ID
	return result, nil
}

var _ Adapter = (*RealtimePaymentAdapter)(nil)
