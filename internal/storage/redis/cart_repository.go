package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// DefaultCartTTL — сколько живёт неизменявшаяся корзина.
const DefaultCartTTL = 30 * 24 * time.Hour

type cartRepository struct {
	store *Store
	ttl   time.Duration
}

// NewCartRepository создаёт Redis-хранилище корзин. ttl<=0 означает DefaultCartTTL.
func NewCartRepository(store *Store, ttl time.Duration) domain.CartRepository {
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &cartRepository{store: store, ttl: ttl}
}

func (r *cartRepository) Get(ctx context.Context, customerID string) (domain.Cart, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := r.store.client.Get(ctx, r.store.key("cart", customerID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return domain.Cart{CustomerID: customerID}, nil
		}
		return domain.Cart{}, storageErr("redis.cart.get", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(raw, &cart); err != nil {
		return domain.Cart{}, storageErr("redis.cart.get", fmt.Errorf("decode cart: %w", err))
	}
	return cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if cart.CustomerID == "" {
		return domain.ErrCustomerRequired
	}

	payload, err := json.Marshal(cart)
	if err != nil {
		return storageErr("redis.cart.save", err)
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.store.client.Set(ctx, r.store.key("cart", cart.CustomerID), payload, r.ttl).Err(); err != nil {
		return storageErr("redis.cart.save", err)
	}
	return nil
}

func (r *cartRepository) Delete(ctx context.Context, customerID string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := r.store.client.Del(ctx, r.store.key("cart", customerID)).Err(); err != nil {
		return storageErr("redis.cart.delete", err)
	}
	return nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
