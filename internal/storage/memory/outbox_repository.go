package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type outboxState uint8

const (
	outboxPending outboxState = iota
	outboxSent
	outboxFailed
)

type outboxEntry struct {
	msg        domain.OutboxMessage
	state      outboxState
	lastError  string
	enqueuedAt time.Time
	order      uint64
}

// OutboxRepository держит очередь событий в памяти; используется без DATABASE_URL и в тестах.
type OutboxRepository struct {
	mu      sync.Mutex
	entries map[string]*outboxEntry
	counter uint64
}

// NewOutboxRepository создаёт пустую очередь.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{entries: make(map[string]*outboxEntry)}
}

// Enqueue ставит событие в очередь; пустой ID заменяется на UUID.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.counter++
	r.entries[msg.ID] = &outboxEntry{msg: msg, enqueuedAt: time.Now().UTC(), order: r.counter}
	return msg, nil
}

func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.queueLocked()
	if len(queue) > limit {
		queue = queue[:limit]
	}
	return messagesOf(queue), nil
}

func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	queue := r.queueLocked()
	if len(queue) == 0 {
		return domain.OutboxStats{}, nil
	}
	return domain.OutboxStats{PendingCount: len(queue), OldestPendingAt: queue[0].enqueuedAt}, nil
}

func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.settle(id, outboxSent, "")
}

func (r *OutboxRepository) MarkFailed(_ context.Context, id string, reason string) error {
	return r.settle(id, outboxFailed, reason)
}

// AllPending отдаёт снимок очереди, пригодный для проверок в тестах.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return messagesOf(r.queueLocked())
}

// LastError возвращает причину, с которой событие было снято с публикации.
func (r *OutboxRepository) LastError(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[id]; ok {
		return entry.lastError
	}
	return ""
}

func (r *OutboxRepository) settle(id string, state outboxState, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	entry.state = state
	entry.lastError = reason
	return nil
}

func (r *OutboxRepository) queueLocked() []*outboxEntry {
	queue := make([]*outboxEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.state == outboxPending {
			queue = append(queue, entry)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i].order < queue[j].order })
	return queue
}

func messagesOf(entries []*outboxEntry) []domain.OutboxMessage {
	out := make([]domain.OutboxMessage, len(entries))
	for i, entry := range entries {
		out[i] = entry.msg
	}
	return out
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
