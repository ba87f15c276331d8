package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// IdempotencyStore держит сохранённые ответы в карте под мьютексом.
type IdempotencyStore struct {
	mu      sync.Mutex
	records map[string]domain.IdempotencyRecord
	clock   func() time.Time
}

// NewIdempotencyRepository создаёт хранилище ответов без внешних зависимостей.
func NewIdempotencyRepository() *IdempotencyStore {
	return &IdempotencyStore{
		records: make(map[string]domain.IdempotencyRecord),
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

// Reserve занимает ключ или возвращает живую запись с ошибкой конфликта.
func (s *IdempotencyStore) Reserve(_ context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := s.clock()
	fresh, err := domain.NewIdempotencyRecord(strings.TrimSpace(key), strings.TrimSpace(requestHash), ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.records[fresh.Key]; ok && !held.Expired(now) {
		return held.Clone(), domain.ReserveConflict(held, fresh.RequestHash)
	}
	s.records[fresh.Key] = fresh
	return fresh.Clone(), nil
}

// Get возвращает живую запись по ключу.
func (s *IdempotencyStore) Get(_ context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.records[key]
	if !ok || held.Expired(s.clock()) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return held.Clone(), nil
}

// Complete сохраняет ответ обработчика.
func (s *IdempotencyStore) Complete(_ context.Context, key string, resp domain.StoredResponse) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.records[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	s.records[key] = held.Complete(resp, s.clock())
	return nil
}

// DeleteExpired вычищает записи с ttl_at не позже before.
func (s *IdempotencyStore) DeleteExpired(_ context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = s.clock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, held := range s.records {
		if limit > 0 && removed >= limit {
			break
		}
		if held.Expired(before) {
			delete(s.records, key)
			removed++
		}
	}
	return removed, nil
}

var _ domain.IdempotencyRepository = (*IdempotencyStore)(nil)
