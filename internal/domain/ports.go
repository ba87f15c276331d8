package domain

import (
	"context"
	"time"
)

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; повторная публикация того же ID допустима.
	Publish(ctx context.Context, event OutboxMessage) error
}

// OutboxRepository хранит события заказов до публикации в брокер.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg OutboxMessage) (OutboxMessage, error)
	// PullPending возвращает до limit неотправленных событий в порядке постановки.
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkSent(ctx context.Context, id string) error
	// MarkFailed снимает событие с публикации и запоминает причину (после отправки в DLQ).
	MarkFailed(ctx context.Context, id string, reason string) error
}

// TimelineRepository хранит журнал переходов заказа.
type TimelineRepository interface {
	Append(ctx context.Context, event TimelineEvent) error
	List(ctx context.Context, orderID string) ([]TimelineEvent, error)
}

// IdempotencyRepository хранит ответы на запросы с заголовком Idempotency-Key.
type IdempotencyRepository interface {
	// Reserve занимает ключ. Если ключ уже занят живой записью, возвращает её вместе с
	// ErrIdempotencyKeyAlreadyExists или ErrIdempotencyHashMismatch.
	Reserve(ctx context.Context, key, requestHash string, ttlAt time.Time) (IdempotencyRecord, error)
	Get(ctx context.Context, key string) (IdempotencyRecord, error)
	// Complete сохраняет ответ; статус done или failed выбирается по HTTP-коду.
	Complete(ctx context.Context, key string, resp StoredResponse) error
	// DeleteExpired удаляет не больше limit истёкших записей (limit <= 0 снимает ограничение).
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// Product — товар каталога в том виде, в каком он нужен заказу.
type Product struct {
	ID         string
	Name       string
	PriceMinor int64
	Currency   string
	Available  bool
}

// Catalog — источник цен. Вызывается только при создании заказа.
type Catalog interface {
	// Product возвращает товар или ErrProductNotFound.
	Product(ctx context.Context, productID string) (Product, error)
}

// CartRepository хранит серверную корзину, привязанную к идентичности.
type CartRepository interface {
	Get(ctx context.Context, customerID string) (Cart, error)
	Save(ctx context.Context, cart Cart) error
	Delete(ctx context.Context, customerID string) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
