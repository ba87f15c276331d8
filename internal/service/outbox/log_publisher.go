package outbox

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// LogPublisher пишет события в лог. Используется, когда брокер не настроен,
// чтобы backlog outbox не рос бесконечно.
type LogPublisher struct {
	logger *log.Entry
}

func NewLogPublisher(logger *log.Entry) *LogPublisher {
	if logger == nil {
		logger = log.WithField("component", "outbox-log-publisher")
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"outbox_id":  event.ID,
		"order_id":   event.AggregateID,
		"event_type": event.EventType,
		"payload":    string(event.Payload),
	}).Info("order event")
	return nil
}

var _ domain.OutboxPublisher = (*LogPublisher)(nil)
