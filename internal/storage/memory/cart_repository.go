package memory

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type cartRepositoryInMemory struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

// NewCartRepository создаёт in-memory хранилище корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{carts: make(map[string]domain.Cart)}
}

// Get возвращает корзину клиента; отсутствующая корзина считается пустой.
func (r *cartRepositoryInMemory) Get(_ context.Context, customerID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cart, ok := r.carts[customerID]
	if !ok {
		return domain.Cart{CustomerID: customerID}, nil
	}
	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	return cart, nil
}

func (r *cartRepositoryInMemory) Save(_ context.Context, cart domain.Cart) error {
	if cart.CustomerID == "" {
		return domain.ErrCustomerRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	r.carts[cart.CustomerID] = cart
	return nil
}

func (r *cartRepositoryInMemory) Delete(_ context.Context, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, customerID)
	return nil
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
