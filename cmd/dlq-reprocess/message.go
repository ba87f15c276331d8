package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// outboxFailure — тело, которое outbox worker кладёт в DLQ вместо исходного события.
type outboxFailure struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	OrderID       string          `json:"order_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

// candidate — сообщение DLQ, которое можно отправить повторно.
type candidate struct {
	orderID string
	out     kafka.Message
}

var errNoOriginalPayload = errors.New("outbox dlq payload does not contain original event payload")

// decodeCandidate понимает два вида записей DLQ:
//   - callback, пересланный consumer-ом (есть заголовок x-original-topic), уходит обратно в исходный topic;
//   - отказ outbox worker-а, из которого собирается исходный OrderEvent для eventsTopic.
//
// ok=false значит, что запись не похожа ни на один вид.
func decodeCandidate(msg *sarama.ConsumerMessage, eventsTopic string, now time.Time) (candidate, bool, error) {
	if topic := headerValue(msg, kafka.HeaderOriginalTopic); topic != "" {
		return forwardedCandidate(msg, topic), true, nil
	}

	event, err := kafka.ParseOrderEvent(msg)
	if err != nil || len(event.Payload) == 0 || string(event.Payload) == "null" {
		return candidate{}, false, nil
	}

	var failure outboxFailure
	if err := json.Unmarshal(event.Payload, &failure); err != nil {
		return candidate{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(failure.Payload) == 0 || string(failure.Payload) == "null" {
		return candidate{}, false, errNoOriginalPayload
	}

	restored := kafka.OrderEvent{
		ID:            firstNonEmpty(failure.OutboxID, event.ID),
		AggregateType: firstNonEmpty(failure.AggregateType, event.AggregateType),
		OrderID:       firstNonEmpty(failure.OrderID, event.OrderID),
		EventType:     firstNonEmpty(failure.EventType, event.EventType),
		Payload:       failure.Payload,
		PublishedAt:   now,
	}
	value, err := json.Marshal(restored)
	if err != nil {
		return candidate{}, false, fmt.Errorf("encode replay event: %w", err)
	}

	return candidate{
		orderID: restored.OrderID,
		out: kafka.Message{
			Topic: eventsTopic,
			Key:   firstNonEmpty(restored.OrderID, restored.ID),
			Value: value,
			Headers: map[string]string{
				kafka.HeaderEventType: restored.EventType,
				kafka.HeaderOutboxID:  restored.ID,
			},
		},
	}, true, nil
}

// forwardedCandidate возвращает callback как есть; счётчик прогонов переносится,
// чтобы consumer продолжил отсчёт попыток.
func forwardedCandidate(msg *sarama.ConsumerMessage, topic string) candidate {
	c := candidate{out: kafka.Message{Topic: topic, Key: string(msg.Key), Value: msg.Value}}
	if count := headerValue(msg, kafka.HeaderRetryCount); count != "" {
		c.out.Headers = map[string]string{kafka.HeaderRetryCount: count}
	}

	var callback kafka.CallbackMessage
	if json.Unmarshal(msg.Value, &callback) == nil {
		c.orderID = strings.TrimSpace(callback.OrderID)
	}
	return c
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
