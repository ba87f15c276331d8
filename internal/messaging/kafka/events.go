// Package kafka публикует события заказов в Kafka и принимает пересланные callback-и провайдеров.
package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/payment"
)

// Topics для Kafka
const (
	TopicOrderEvents      = "storefront.order.events"
	TopicPaymentCallbacks = "storefront.payment.callbacks"
	TopicDeadLetterQueue  = "storefront.dlq"
)

// Kafka headers
const (
	HeaderEventType     = "x-event-type"
	HeaderOutboxID      = "x-outbox-id"
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent — конверт события заказа в topic storefront.order.events.
type OrderEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	OrderID       string          `json:"order_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// CallbackMessage — webhook провайдера, пересланный в Kafka внешним приёмником.
// Квитанции наличной оплаты через Kafka не принимаются: их подтверждает администратор по HTTP.
type CallbackMessage struct {
	Provider          string    `json:"provider"`
	OrderID           string    `json:"order_id"`
	ProviderOrderID   string    `json:"provider_order_id,omitempty"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	Signature         string    `json:"signature,omitempty"`
	Status            string    `json:"status,omitempty"`
	TransactionRef    string    `json:"transaction_ref,omitempty"`
	ReceivedAt        time.Time `json:"received_at,omitempty"`
}

// Payload переводит сообщение в нормализованный callback.
func (m CallbackMessage) Payload() payment.CallbackPayload {
	return payment.CallbackPayload{
		OrderID:           strings.TrimSpace(m.OrderID),
		ProviderOrderID:   m.ProviderOrderID,
		ProviderPaymentID: m.ProviderPaymentID,
		Signature:         m.Signature,
		Status:            m.Status,
		TransactionRef:    m.TransactionRef,
	}
}

// ParseOrderEvent парсит OrderEvent из сообщения
func ParseOrderEvent(message *sarama.ConsumerMessage) (*OrderEvent, error) {
	var event OrderEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order event: %w", err)
	}
	return &event, nil
}

// ParseCallbackMessage парсит пересланный callback. Провайдер обязателен.
func ParseCallbackMessage(message *sarama.ConsumerMessage) (*CallbackMessage, error) {
	var msg CallbackMessage
	if err := json.Unmarshal(message.Value, &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment callback: %w", err)
	}
	if strings.TrimSpace(msg.Provider) == "" {
		return nil, fmt.Errorf("payment callback has no provider")
	}
	return &msg, nil
}

func header(message *sarama.ConsumerMessage, key string) string {
	for _, h := range message.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}
