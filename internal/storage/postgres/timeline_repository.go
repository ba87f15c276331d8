package postgres

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type timelineRepository struct {
	store *Store
}

// NewTimelineRepository создаёт PostgreSQL-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{store: store}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if event.OrderID == "" {
		return domain.ErrOrderIDRequired
	}
	if event.Occurred.IsZero() {
		event.Occurred = time.Now().UTC()
	}

	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	_, err := r.store.DB().ExecContext(ctx,
		`INSERT INTO timeline_events (order_id, type, reason, occurred) VALUES ($1, $2, $3, $4)`,
		event.OrderID, event.Type, event.Reason, event.Occurred)
	return storageErr("postgres.timeline.append", err)
}

// List отдаёт события по времени; bigserial id разрешает равные метки.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	rows, err := r.store.DB().QueryContext(ctx, `SELECT type, reason, occurred
		FROM timeline_events WHERE order_id = $1 ORDER BY occurred, id`, orderID)
	if err != nil {
		return nil, storageErr("postgres.timeline.list", err)
	}
	defer rows.Close()

	var events []domain.TimelineEvent
	for rows.Next() {
		event := domain.TimelineEvent{OrderID: orderID}
		if err := rows.Scan(&event.Type, &event.Reason, &event.Occurred); err != nil {
			return nil, storageErr("postgres.timeline.list", err)
		}
		event.Occurred = event.Occurred.UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("postgres.timeline.list", err)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
