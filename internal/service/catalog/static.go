// Package catalog содержит клиентов Catalog Service: HTTP и статический.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Static — каталог в памяти. Используется в dev-режиме и тестах.
type Static struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewStatic создаёт каталог из переданных товаров.
func NewStatic(products ...domain.Product) *Static {
	s := &Static{products: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		s.Put(p)
	}
	return s
}

// Put добавляет или заменяет товар.
func (s *Static) Put(p domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

func (s *Static) Product(ctx context.Context, productID string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, domain.WrapError(domain.ErrProvider, "catalog.static", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[strings.TrimSpace(productID)]
	if !ok {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return p, nil
}

// List возвращает товары, отсортированные по ID.
func (s *Static) List() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SeedProducts — демонстрационный ассортимент магазина, цены в пайсах.
func SeedProducts() []domain.Product {
	seed := []struct {
		id    string
		name  string
		price int64
	}{
		{"fresh-apples", "Fresh Apples", 19900},
		{"bananas", "Bananas", 6900},
		{"oranges", "Oranges", 12900},
		{"strawberries", "Strawberries", 9900},
		{"grapes", "Grapes", 14900},
		{"fresh-carrots", "Fresh Carrots", 4900},
		{"broccoli", "Broccoli", 7900},
		{"spinach", "Spinach", 6900},
		{"tomatoes", "Tomatoes", 8900},
		{"bell-peppers", "Bell Peppers", 11900},
		{"whole-milk", "Whole Milk", 8900},
		{"cheddar-cheese", "Cheddar Cheese", 24900},
		{"greek-yogurt", "Greek Yogurt", 12900},
		{"butter", "Butter", 19900},
		{"chicken-breast", "Chicken Breast", 39900},
		{"ground-beef", "Ground Beef", 44900},
		{"salmon-fillet", "Salmon Fillet", 89900},
		{"fresh-bread", "Fresh Bread", 7900},
		{"croissants", "Croissants", 12900},
		{"orange-juice", "Orange Juice", 14900},
		{"coffee-beans", "Coffee Beans", 49900},
		{"mixed-nuts", "Mixed Nuts", 39900},
		{"granola-bars", "Granola Bars", 19900},
		{"paper-towels", "Paper Towels", 24900},
		{"dish-soap", "Dish Soap", 9900},
	}

	out := make([]domain.Product, 0, len(seed))
	for _, p := range seed {
		out = append(out, domain.Product{
			ID:         p.id,
			Name:       p.name,
			PriceMinor: p.price,
			Currency:   domain.DefaultCurrency,
			Available:  true,
		})
	}
	return out
}

var _ domain.Catalog = (*Static)(nil)
