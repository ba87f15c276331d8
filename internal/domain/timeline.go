package domain

import "time"

// Типы событий жизненного цикла. Одни и те же имена пишутся в timeline и outbox.
const (
	EventOrderCreated       = "OrderCreated"
	EventPaymentInitiated   = "PaymentInitiated"
	EventOrderPaid          = "OrderPaid"
	EventPaymentFailed      = "PaymentFailed"
	EventOrderCanceled      = "OrderCanceled"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// OrderAggregate — aggregate_type событий outbox.
const OrderAggregate = "order"

// TimelineEvent описывает событие в жизненном цикле заказа.
type TimelineEvent struct {
	OrderID  string
	Type     string
	Reason   string
	Occurred time.Time
}
