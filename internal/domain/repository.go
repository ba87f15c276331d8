package domain

import (
	"context"
	"time"
)

// TransitionRequest описывает атомарную смену статуса заказа.
type TransitionRequest struct {
	OrderID  string
	Expected OrderStatus
	Next     OrderStatus
	// Intent, если задан, сохраняется вместе со сменой статуса.
	Intent *PaymentIntent
	// ClearIntent удаляет сохранённый intent.
	ClearIntent bool
	// Details заполняется при подтверждении оплаты.
	Details *PaymentDetails
}

// Validate проверяет запрос до обращения к хранилищу.
func (r TransitionRequest) Validate() error {
	if r.OrderID == "" {
		return ErrOrderIDRequired
	}
	if !CanTransition(r.Expected, r.Next) {
		return NewError(ErrInvalidState, "transition",
			"transition "+string(r.Expected)+" -> "+string(r.Next)+" is not allowed")
	}
	return nil
}

// Apply переносит изменения запроса на копию заказа. Хранилища используют его,
// чтобы правила обновления intent и деталей оплаты были одинаковыми.
func (r TransitionRequest) Apply(order Order, now time.Time) Order {
	out := order.Clone()
	out.Status = r.Next
	if r.ClearIntent {
		out.Intent = nil
	}
	if r.Intent != nil {
		intent := *r.Intent
		out.Intent = &intent
	}
	if r.Details != nil {
		details := *r.Details
		out.Payment = &details
	}
	out.Version++
	out.UpdatedAt = now
	return out
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ в статусе CREATED. Возвращает ErrOrderAlreadyExists для дубликата ID.
	Create(ctx context.Context, order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// ListByCustomer возвращает заказы клиента, новые первыми.
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]Order, error)
	// Transition меняет статус, только если текущий равен Expected (compare-and-set).
	Transition(ctx context.Context, req TransitionRequest) (Order, error)
}

// ValidateNew проверяет заказ перед первой записью.
func ValidateNew(order Order) error {
	if order.ID == "" {
		return ErrOrderIDRequired
	}
	if order.Status != OrderStatusCreated {
		return NewError(ErrInvalidState, "create", "new order must be in status CREATED")
	}
	return JoinValidation("create", order.ValidateInvariants())
}
