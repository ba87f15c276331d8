package memory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

func newOrder(id string, createdAt time.Time) domain.Order {
	return domain.Order{
		ID:            id,
		CustomerID:    "customer-1",
		Status:        domain.OrderStatusCreated,
		Currency:      "INR",
		SubtotalMinor: 500,
		AmountMinor:   500,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "p1", Name: "Mug", Qty: 5, UnitPriceMinor: 100},
		},
		ShippingAddress: domain.Address{
			Street: "1 MG Road", City: "Pune", Region: "MH", PostalCode: "411001", Country: "IN",
		},
		PaymentMethod: domain.PaymentMethodCard,
		CreatedAt:     createdAt,
		UpdatedAt:     createdAt,
	}
}

func TestOrderRepository_CreateGet(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", time.Now().UTC())

	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, err := repo.Get(ctx, order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != order.ID || stored.AmountMinor != 500 {
		t.Fatalf("unexpected stored order %+v", stored)
	}

	if err := repo.Create(ctx, order); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}
	if _, err := repo.Get(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestOrderRepository_CreateValidates(t *testing.T) {
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", time.Now().UTC())
	order.Items[0].Qty = 0

	if err := repo.Create(context.Background(), order); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOrderRepository_ListByCustomer(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	base := time.Now().UTC()

	for i, id := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, newOrder(id, base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}
	other := newOrder("z", base)
	other.CustomerID = "customer-2"
	if err := repo.Create(ctx, other); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	orders, err := repo.ListByCustomer(ctx, "customer-1", 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(orders) != 2 || orders[0].ID != "c" || orders[1].ID != "b" {
		t.Fatalf("unexpected order list %+v", orders)
	}
}

func TestOrderRepository_Transition(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := repo.Transition(ctx, domain.TransitionRequest{
		OrderID:  order.ID,
		Expected: domain.OrderStatusCreated,
		Next:     domain.OrderStatusAwaitingPayment,
		Intent:   &domain.PaymentIntent{Method: domain.PaymentMethodCard, ProviderRef: "order_ABC"},
	})
	if err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if updated.Status != domain.OrderStatusAwaitingPayment || updated.Version != 1 {
		t.Fatalf("unexpected order after transition %+v", updated)
	}
	if updated.Intent == nil || updated.Intent.ProviderRef != "order_ABC" {
		t.Fatalf("intent not stored: %+v", updated.Intent)
	}

	_, err = repo.Transition(ctx, domain.TransitionRequest{
		OrderID:  order.ID,
		Expected: domain.OrderStatusCreated,
		Next:     domain.OrderStatusCancelled,
	})
	if !errors.Is(err, domain.ErrOrderStatusConflict) {
		t.Fatalf("expected status conflict, got %v", err)
	}

	_, err = repo.Transition(ctx, domain.TransitionRequest{
		OrderID:  "missing",
		Expected: domain.OrderStatusCreated,
		Next:     domain.OrderStatusCancelled,
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderRepository_TransitionIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var (
		wg      sync.WaitGroup
		success atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Transition(ctx, domain.TransitionRequest{
				OrderID:  order.ID,
				Expected: domain.OrderStatusCreated,
				Next:     domain.OrderStatusAwaitingPayment,
			})
			if err == nil {
				success.Add(1)
			}
		}()
	}
	wg.Wait()

	if success.Load() != 1 {
		t.Fatalf("expected exactly one successful transition, got %d", success.Load())
	}
}

func TestOrderRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewOrderRepository()
	order := newOrder("order-1", time.Now().UTC())
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	stored, _ := repo.Get(ctx, order.ID)
	stored.Items[0].Qty = 99

	again, _ := repo.Get(ctx, order.ID)
	if again.Items[0].Qty != 5 {
		t.Fatalf("stored order mutated through returned copy")
	}
}
