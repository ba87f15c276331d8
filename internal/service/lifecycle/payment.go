package lifecycle

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
)

// InitiateResult — handle для клиента и заказ после инициации.
type InitiateResult struct {
	Handle payment.Handle
	Order  domain.Order
	// Reused — handle взят из сохранённого intent без обращения к провайдеру.
	Reused bool
}

// FinalizeResult — итог обработки callback-а.
type FinalizeResult struct {
	Order     domain.Order
	Succeeded bool
	// AlreadyFinal — заказ уже оплачен или уже получил отказ, повторный callback ничего не изменил.
	AlreadyFinal bool
}

// InitiatePayment переводит заказ в AWAITING_PAYMENT и сохраняет intent.
// Повторный вызов в AWAITING_PAYMENT возвращает сохранённый handle.
func (c *Controller) InitiatePayment(ctx context.Context, identity domain.Identity, orderID string, method domain.PaymentMethod) (InitiateResult, error) {
	const op = "lifecycle.initiate_payment"
	defer c.metrics.StartOperation("initiate_payment")()

	order, err := c.getOwned(ctx, op, identity, orderID)
	if err != nil {
		return InitiateResult{}, err
	}
	if method != order.PaymentMethod {
		return InitiateResult{}, domain.ErrPaymentMethodMismatch
	}

	if reused, ok := storedHandle(order, method); ok {
		c.metrics.RecordInitiation(string(method), "reused")
		return InitiateResult{Handle: reused, Order: order, Reused: true}, nil
	}
	if order.Status != domain.OrderStatusCreated && order.Status != domain.OrderStatusPaymentFailed {
		return InitiateResult{}, domain.NewError(domain.ErrInvalidState, op,
			"payment cannot be initiated for order in status "+string(order.Status))
	}

	adapter, err := c.payments.Adapter(method)
	if err != nil {
		return InitiateResult{}, err
	}

	handle, err := adapter.Initiate(ctx, order)
	if err != nil {
		c.metrics.RecordInitiation(string(method), "error")
		c.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"provider": method,
		}).Warn("payment initiation failed")
		return InitiateResult{}, err
	}

	updated, err := c.transition(ctx, domain.TransitionRequest{
		OrderID:  order.ID,
		Expected: order.Status,
		Next:     domain.OrderStatusAwaitingPayment,
		Intent:   handle.Intent(c.now()),
	}, domain.EventPaymentInitiated, "", map[string]any{
		"provider":     string(method),
		"provider_ref": handle.ProviderRef,
	})
	if err != nil {
		if !domain.IsConflict(err) {
			return InitiateResult{}, err
		}
		// Параллельная инициация успела раньше: отдаём её intent.
		fresh, getErr := c.orders.Get(ctx, order.ID)
		if getErr != nil {
			return InitiateResult{}, getErr
		}
		if reused, ok := storedHandle(fresh, method); ok {
			c.logger.WithFields(log.Fields{
				"order_id":     order.ID,
				"provider_ref": handle.ProviderRef,
			}).Warn("concurrent initiation won, discarding provider handle")
			c.metrics.RecordInitiation(string(method), "reused")
			return InitiateResult{Handle: reused, Order: fresh, Reused: true}, nil
		}
		return InitiateResult{}, err
	}

	c.metrics.RecordInitiation(string(method), "ok")
	return InitiateResult{Handle: handle, Order: updated}, nil
}

func storedHandle(order domain.Order, method domain.PaymentMethod) (payment.Handle, bool) {
	if order.Status != domain.OrderStatusAwaitingPayment || order.Intent == nil || order.Intent.Method != method {
		return payment.Handle{}, false
	}
	return payment.HandleFromIntent(*order.Intent), true
}

// Finalize проверяет callback провайдера и переводит заказ в PAID или PAYMENT_FAILED.
// Подписанные callback-и принимаются без идентичности; неподписанное подтверждение
// требует владельца заказа, а ручное требует администратора.
func (c *Controller) Finalize(ctx context.Context, caller domain.Identity, method domain.PaymentMethod, payload payment.CallbackPayload) (FinalizeResult, error) {
	const op = "lifecycle.finalize"
	defer c.metrics.StartOperation("finalize")()

	orderID := strings.TrimSpace(payload.OrderID)
	if orderID == "" {
		c.metrics.RecordVerification(string(method), metrics.VerificationRejected)
		return FinalizeResult{}, domain.ErrCallbackMalformed
	}
	adapter, err := c.payments.Adapter(method)
	if err != nil {
		return FinalizeResult{}, err
	}

	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return FinalizeResult{}, err
	}
	if order.PaymentMethod != method {
		c.metrics.RecordVerification(string(method), metrics.VerificationRejected)
		c.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"provider": method,
			"expected": order.PaymentMethod,
		}).Warn("callback provider does not match order payment method")
		return FinalizeResult{}, domain.NewError(domain.ErrVerification, op, "provider does not match order payment method")
	}
	if err := authorizeConfirmation(op, adapter.TrustLevel(), caller, order); err != nil {
		return FinalizeResult{}, err
	}

	if order.Status.IsSettled() {
		return FinalizeResult{Order: order, Succeeded: true, AlreadyFinal: true}, nil
	}
	// Повтор отказа для уже неуспешного заказа ничего не меняет.
	if order.Status == domain.OrderStatusPaymentFailed && payment.ReportsFailure(payload.Status) {
		return FinalizeResult{Order: order, AlreadyFinal: true}, nil
	}
	if order.Status != domain.OrderStatusAwaitingPayment {
		return FinalizeResult{}, domain.NewError(domain.ErrInvalidState, op,
			"order in status "+string(order.Status)+" is not awaiting payment")
	}

	result, err := adapter.Verify(ctx, order, payload)
	if err != nil {
		c.metrics.RecordVerification(string(method), metrics.VerificationRejected)
		c.logger.WithError(err).WithFields(log.Fields{
			"order_id": order.ID,
			"provider": method,
		}).Warn("payment callback verification failed")
		if domain.KindOf(err) == nil {
			err = domain.WrapError(domain.ErrVerification, op, err)
		}
		return FinalizeResult{}, err
	}

	req := domain.TransitionRequest{
		OrderID:     order.ID,
		Expected:    domain.OrderStatusAwaitingPayment,
		ClearIntent: true,
	}
	eventType := domain.EventPaymentFailed
	meta := map[string]any{
		"provider":            string(method),
		"provider_payment_id": result.ProviderReference,
		"trust_level":         string(result.TrustLevel),
	}
	if result.Succeeded {
		req.Next = domain.OrderStatusPaid
		req.Details = &domain.PaymentDetails{
			Provider:          method,
			ProviderPaymentID: result.ProviderReference,
			ProviderOrderID:   result.ProviderOrderID,
			TrustLevel:        result.TrustLevel,
			ConfirmedAt:       c.now(),
		}
		eventType = domain.EventOrderPaid
		c.metrics.RecordVerification(string(method), metrics.VerificationSucceeded)
	} else {
		req.Next = domain.OrderStatusPaymentFailed
		c.metrics.RecordVerification(string(method), metrics.VerificationFailed)
	}

	updated, err := c.transition(ctx, req, eventType, "", meta)
	if err != nil {
		if !domain.IsConflict(err) {
			return FinalizeResult{}, err
		}
		fresh, getErr := c.orders.Get(ctx, order.ID)
		if getErr != nil {
			return FinalizeResult{}, getErr
		}
		if fresh.Status.IsSettled() {
			return FinalizeResult{Order: fresh, Succeeded: true, AlreadyFinal: true}, nil
		}
		if fresh.Status == domain.OrderStatusPaymentFailed && !result.Succeeded {
			return FinalizeResult{Order: fresh, AlreadyFinal: true}, nil
		}
		return FinalizeResult{}, err
	}

	return FinalizeResult{Order: updated, Succeeded: result.Succeeded}, nil
}

func authorizeConfirmation(op string, trust domain.TrustLevel, caller domain.Identity, order domain.Order) error {
	switch trust {
	case domain.TrustClientAsserted:
		if err := requireIdentity(op, caller); err != nil {
			return err
		}
		if !caller.CanAccess(order) {
			return domain.ErrNotOrderOwner
		}
	case domain.TrustManual:
		if err := requireIdentity(op, caller); err != nil {
			return err
		}
		if !caller.IsAdmin() {
			return domain.NewError(domain.ErrAuthorization, op, "manual payment confirmation requires admin role")
		}
	}
	return nil
}
