package domain

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusCreated — заказ сохранён, оплата не начата.
	OrderStatusCreated OrderStatus = "CREATED"
	// OrderStatusAwaitingPayment — провайдер выдал handle, ждём callback.
	OrderStatusAwaitingPayment OrderStatus = "AWAITING_PAYMENT"
	// OrderStatusPaid — оплата подтверждена.
	OrderStatusPaid OrderStatus = "PAID"
	// OrderStatusFulfilling — заказ собирается и отгружается.
	OrderStatusFulfilling OrderStatus = "FULFILLING"
	// OrderStatusDelivered — заказ доставлен.
	OrderStatusDelivered OrderStatus = "DELIVERED"
	// OrderStatusCancelled — заказ отменён до оплаты.
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusPaymentFailed — провайдер сообщил об отказе; допускается повтор.
	OrderStatusPaymentFailed OrderStatus = "PAYMENT_FAILED"
)

var transitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:         {OrderStatusAwaitingPayment, OrderStatusCancelled},
	OrderStatusAwaitingPayment: {OrderStatusPaid, OrderStatusPaymentFailed, OrderStatusCancelled},
	OrderStatusPaymentFailed:   {OrderStatusAwaitingPayment},
	OrderStatusPaid:            {OrderStatusFulfilling},
	OrderStatusFulfilling:      {OrderStatusDelivered},
}

// Valid проверяет, что статус известен.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusAwaitingPayment, OrderStatusPaid, OrderStatusFulfilling,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusPaymentFailed:
		return true
	default:
		return false
	}
}

// CanTransition сообщает, разрешён ли переход from -> to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal сообщает, что из статуса нет обычных переходов.
// PAYMENT_FAILED терминален, но допускает повторную оплату.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusPaymentFailed:
		return true
	default:
		return false
	}
}

// IsSettled сообщает, что оплата по заказу уже подтверждена.
func (s OrderStatus) IsSettled() bool {
	return s == OrderStatusPaid || s == OrderStatusFulfilling || s == OrderStatusDelivered
}

// Cancellable сообщает, можно ли отменить заказ в этом статусе.
func (s OrderStatus) Cancellable() bool {
	return s == OrderStatusCreated || s == OrderStatusAwaitingPayment
}
