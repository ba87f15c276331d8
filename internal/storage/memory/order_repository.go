package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// OrderStore держит заказы в памяти. Все переходы статусов идут под одним мьютексом,
// поэтому compare-and-set в Transition атомарен.
type OrderStore struct {
	mu         sync.RWMutex
	orders     map[string]domain.Order
	byCustomer map[string][]string
	clock      func() time.Time
}

// NewOrderRepository возвращает пустое хранилище заказов.
func NewOrderRepository() *OrderStore {
	return &OrderStore{
		orders:     make(map[string]domain.Order),
		byCustomer: make(map[string][]string),
		clock:      func() time.Time { return time.Now().UTC() },
	}
}

func alive(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return domain.WrapError(domain.ErrStorage, op, err)
	}
	return nil
}

func (s *OrderStore) Create(ctx context.Context, order domain.Order) error {
	if err := alive(ctx, "memory.order.create"); err != nil {
		return err
	}
	if err := domain.ValidateNew(order); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.orders[order.ID]; taken {
		return domain.ErrOrderAlreadyExists
	}
	s.orders[order.ID] = order.Clone()
	s.byCustomer[order.CustomerID] = append(s.byCustomer[order.CustomerID], order.ID)
	return nil
}

func (s *OrderStore) Get(ctx context.Context, id string) (domain.Order, error) {
	if err := alive(ctx, "memory.order.get"); err != nil {
		return domain.Order{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListByCustomer отдаёт заказы клиента от новых к старым; limit <= 0 снимает ограничение.
func (s *OrderStore) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	if err := alive(ctx, "memory.order.list"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := s.byCustomer[customerID]
	out := make([]domain.Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.orders[id].Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, newestFirst)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// newestFirst упорядочивает по created_at убыв., при равенстве по id убыв.,
// как ORDER BY в postgres-реализации.
func newestFirst(a, b domain.Order) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	}
	return 0
}

// Transition меняет статус, только если текущий равен req.Expected.
func (s *OrderStore) Transition(ctx context.Context, req domain.TransitionRequest) (domain.Order, error) {
	if err := alive(ctx, "memory.order.transition"); err != nil {
		return domain.Order{}, err
	}
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[req.OrderID]
	switch {
	case !ok:
		return domain.Order{}, domain.ErrOrderNotFound
	case current.Status != req.Expected:
		return domain.Order{}, domain.ErrOrderStatusConflict
	}

	next := req.Apply(current, s.clock())
	s.orders[next.ID] = next
	return next.Clone(), nil
}

var _ domain.OrderRepository = (*OrderStore)(nil)
