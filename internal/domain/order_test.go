package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания базового заказа с двумя позициями.
func makeOrder() domain.Order {
	now := time.Now().UTC()
	return domain.Order{
		ID:            "order-1",
		CustomerID:    "customer-1",
		Status:        domain.OrderStatusCreated,
		Currency:      "INR",
		SubtotalMinor: 39800,
		AmountMinor:   39800,
		Items: []domain.OrderItem{
			{ID: "item-1", ProductID: "p1", Name: "Mug", Qty: 2, UnitPriceMinor: 9900},
			{ID: "item-2", ProductID: "p2", Name: "Tee", Qty: 1, UnitPriceMinor: 20000},
		},
		ShippingAddress: domain.Address{
			Street: "1 MG Road", City: "Pune", Region: "MH", PostalCode: "411001", Country: "IN",
		},
		PaymentMethod: domain.PaymentMethodCard,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestOrderValidateInvariants_Ok(t *testing.T) {
	order := makeOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.Order)
		want error
	}{
		{name: "no customer", mut: func(o *domain.Order) { o.CustomerID = "" }, want: domain.ErrCustomerRequired},
		{name: "no items", mut: func(o *domain.Order) { o.Items = nil }, want: domain.ErrItemsRequired},
		{name: "qty invalid", mut: func(o *domain.Order) { o.Items[0].Qty = 0 }, want: domain.ErrItemQtyInvalid},
		{name: "price invalid", mut: func(o *domain.Order) { o.Items[0].UnitPriceMinor = -5 }, want: domain.ErrItemPriceInvalid},
		{name: "amount mismatch", mut: func(o *domain.Order) { o.AmountMinor = 999 }, want: domain.ErrAmountMismatch},
		{name: "fees not counted", mut: func(o *domain.Order) { o.FeesMinor = 100 }, want: domain.ErrAmountMismatch},
		{name: "address incomplete", mut: func(o *domain.Order) { o.ShippingAddress.City = " " }, want: domain.ErrAddressIncomplete},
		{name: "method invalid", mut: func(o *domain.Order) { o.PaymentMethod = "paypal" }, want: domain.ErrPaymentMethodInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeOrder()
			tc.mut(&order)

			errs := order.ValidateInvariants()
			if len(errs) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
			joined := errors.Join(errs...)
			if !errors.Is(joined, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, joined)
			}
			if !errors.Is(joined, domain.ErrValidation) {
				t.Fatalf("expected validation kind, got %v", joined)
			}
		})
	}
}

func TestOrderValidateInvariants_FeesIncluded(t *testing.T) {
	order := makeOrder()
	order.FeesMinor = domain.FeeMinor(order.SubtotalMinor, 800)
	order.AmountMinor = order.SubtotalMinor + order.FeesMinor
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestFeeMinor(t *testing.T) {
	tests := []struct {
		subtotal int64
		bps      int64
		want     int64
	}{
		{subtotal: 39800, bps: 0, want: 0},
		{subtotal: 39800, bps: 800, want: 3184},
		{subtotal: 125, bps: 400, want: 5},
		{subtotal: 99, bps: 50, want: 0},
		{subtotal: 100, bps: 50, want: 1},
	}
	for _, tt := range tests {
		if got := domain.FeeMinor(tt.subtotal, tt.bps); got != tt.want {
			t.Fatalf("FeeMinor(%d, %d) = %d, want %d", tt.subtotal, tt.bps, got, tt.want)
		}
	}
}

func TestOrderClone_IsDeep(t *testing.T) {
	order := makeOrder()
	order.Intent = &domain.PaymentIntent{Method: domain.PaymentMethodCard, Handle: map[string]string{"k": "v"}}

	clone := order.Clone()
	clone.Items[0].Qty = 42
	clone.Intent.Handle["k"] = "changed"

	if order.Items[0].Qty == 42 {
		t.Fatal("clone shares items slice")
	}
	if order.Intent.Handle["k"] != "v" {
		t.Fatal("clone shares intent handle")
	}
}

func TestParsePaymentMethod(t *testing.T) {
	for _, raw := range []string{"card", " Realtime_Push ", "cash_on_delivery"} {
		if _, err := domain.ParsePaymentMethod(raw); err != nil {
			t.Fatalf("ParsePaymentMethod(%q): %v", raw, err)
		}
	}
	if _, err := domain.ParsePaymentMethod("bitcoin"); !errors.Is(err, domain.ErrPaymentMethodInvalid) {
		t.Fatalf("expected ErrPaymentMethodInvalid, got %v", err)
	}
}
