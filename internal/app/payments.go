package app

import (
	"errors"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
)

// buildPaymentRegistry собирает реестр из настроенных провайдеров.
// Провайдер без конфигурации пропускается: запросы к нему получают provider_not_configured.
func buildPaymentRegistry(cfg Config, client *http.Client, logger *log.Entry) (*payment.Registry, error) {
	if logger == nil {
		logger = log.WithField("component", "payments")
	}
	var adapters []payment.Adapter

	retry := payment.DefaultRetryConfig()
	if cfg.ProviderMaxAttempts > 0 {
		retry.MaxAttempts = cfg.ProviderMaxAttempts
	}
	if cfg.ProviderRetryDelay > 0 {
		retry.InitialDelay = cfg.ProviderRetryDelay
	}

	card, err := payment.NewCardGatewayAdapter(payment.CardGatewayConfig{
		BaseURL:         cfg.CardGatewayURL,
		KeyID:           cfg.CardKeyID,
		KeySecret:       cfg.CardKeySecret,
		WebhookSecret:   cfg.CardWebhookSecret,
		Timeout:         cfg.CardTimeout,
		Retry:           retry,
		BreakerFailures: cfg.ProviderBreakerLimit,
		BreakerReset:    cfg.ProviderBreakerReset,
	}, client, logger)
	switch {
	case err == nil:
		adapters = append(adapters, card)
	case errors.Is(err, domain.ErrProviderNotConfigured):
		logger.WithField("provider", domain.PaymentMethodCard).Info("payment provider disabled: not configured")
	default:
		return nil, err
	}

	realtime, err := payment.NewRealtimePaymentAdapter(payment.RealtimeConfig{
		VPA:           cfg.UPIVPA,
		MerchantName:  cfg.UPIMerchantName,
		WebhookSecret: cfg.UPIWebhookSecret,
	}, logger)
	switch {
	case err == nil:
		if cfg.UPIWebhookSecret == "" {
			logger.WithField("provider", domain.PaymentMethodRealtimePush).
				Warn("realtime payments accept client-asserted confirmations: webhook secret is not set")
		}
		adapters = append(adapters, realtime)
	case errors.Is(err, domain.ErrProviderNotConfigured):
		logger.WithField("provider", domain.PaymentMethodRealtimePush).Info("payment provider disabled: not configured")
	default:
		return nil, err
	}

	if cfg.CODEnabled {
		adapters = append(adapters, payment.NewManualAdapter(cfg.CODInstructions))
	}

	registry := payment.NewRegistry(adapters...)
	logger.WithField("methods", registry.Methods()).Info("payment providers registered")
	return registry, nil
}
