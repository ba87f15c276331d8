package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const defaultOutboxBatch = 100

type outboxRepository struct {
	store *Store
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{store: store}
}

func (r *outboxRepository) Enqueue(ctx context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if _, err := r.store.DB().ExecContext(ctx, `INSERT INTO outbox_messages
		(id, aggregate_type, aggregate_id, event_type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6, $6)`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now,
	); err != nil {
		return domain.OutboxMessage{}, storageErr("postgres.outbox.enqueue", err)
	}
	return msg, nil
}

// PullPending читает очередь по индексу idx_outbox_messages_pending.
func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = defaultOutboxBatch
	}

	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	rows, err := r.store.DB().QueryContext(ctx, `SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, storageErr("postgres.outbox.pull", err)
	}
	defer rows.Close()

	batch := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var msg domain.OutboxMessage
		if err := rows.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload); err != nil {
			return nil, storageErr("postgres.outbox.pull", fmt.Errorf("scan: %w", err))
		}
		batch = append(batch, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("postgres.outbox.pull", err)
	}
	return batch, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	var (
		pending int
		oldest  sql.NullTime
	)
	err := r.store.DB().QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(created_at) FROM outbox_messages WHERE status = 'pending'`,
	).Scan(&pending, &oldest)
	if err != nil {
		return domain.OutboxStats{}, storageErr("postgres.outbox.stats", err)
	}

	stats := domain.OutboxStats{PendingCount: pending}
	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkSent(ctx context.Context, id string) error {
	return r.settle(ctx, id, "sent", "")
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.settle(ctx, id, "failed", reason)
}

// settle закрывает событие; attempt_count считает попытки доставки, включая последнюю.
func (r *outboxRepository) settle(ctx context.Context, id, status, reason string) error {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	res, err := r.store.DB().ExecContext(ctx, `UPDATE outbox_messages
		SET status = $2, last_error = $3, attempt_count = attempt_count + 1, updated_at = $4
		WHERE id = $1`, id, status, reason, time.Now().UTC())
	if err != nil {
		return storageErr("postgres.outbox."+status, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageErr("postgres.outbox."+status, err)
	} else if n == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
