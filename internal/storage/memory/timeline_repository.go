package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// TimelineStore хранит журнал переходов по заказам.
type TimelineStore struct {
	mu      sync.RWMutex
	byOrder map[string][]domain.TimelineEvent
}

func NewTimelineRepository() *TimelineStore {
	return &TimelineStore{byOrder: make(map[string][]domain.TimelineEvent)}
}

// Append вставляет событие по времени; при равном Occurred порядок записи сохраняется.
func (s *TimelineStore) Append(_ context.Context, event domain.TimelineEvent) error {
	if event.OrderID == "" {
		return domain.ErrOrderIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.byOrder[event.OrderID]
	at := sort.Search(len(events), func(i int) bool {
		return events[i].Occurred.After(event.Occurred)
	})
	events = append(events, domain.TimelineEvent{})
	copy(events[at+1:], events[at:])
	events[at] = event
	s.byOrder[event.OrderID] = events
	return nil
}

func (s *TimelineStore) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]domain.TimelineEvent(nil), s.byOrder[orderID]...), nil
}

var _ domain.TimelineRepository = (*TimelineStore)(nil)
