package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// jsonSender — то, что паблишеру нужно от Producer.
type jsonSender interface {
	SendJSON(ctx context.Context, topic, key string, value any, headers map[string]string) error
}

// OutboxPublisher заворачивает событие outbox в OrderEvent и пишет его в topic.
// Ключ сообщения — id заказа, поэтому события одного заказа идут в одну партицию по порядку.
type OutboxPublisher struct {
	sender jsonSender
	topic  string
	now    func() time.Time
}

// NewOutboxPublisher создаёт паблишер; пустой topic означает TopicOrderEvents.
func NewOutboxPublisher(sender jsonSender, topic string) *OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxPublisher{sender: sender, topic: topic, now: func() time.Time { return time.Now().UTC() }}
}

func (p *OutboxPublisher) Publish(ctx context.Context, msg domain.OutboxMessage) error {
	if p == nil || p.sender == nil {
		return errProducerClosed
	}

	return p.sender.SendJSON(ctx, p.topic, partitionKey(msg), envelope(msg, p.now()), map[string]string{
		HeaderEventType: msg.EventType,
		HeaderOutboxID:  msg.ID,
	})
}

// partitionKey — id заказа, а для событий без агрегата id самого события.
func partitionKey(msg domain.OutboxMessage) string {
	if msg.AggregateID != "" {
		return msg.AggregateID
	}
	return msg.ID
}

func envelope(msg domain.OutboxMessage, at time.Time) OrderEvent {
	payload := json.RawMessage(msg.Payload)
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	return OrderEvent{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		OrderID:       msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		PublishedAt:   at,
	}
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
