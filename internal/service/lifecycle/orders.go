package lifecycle

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// GetOrder возвращает заказ владельцу или администратору.
func (c *Controller) GetOrder(ctx context.Context, identity domain.Identity, orderID string) (domain.Order, error) {
	return c.getOwned(ctx, "lifecycle.get_order", identity, orderID)
}

// ListOrders возвращает заказы identity, новые первыми.
func (c *Controller) ListOrders(ctx context.Context, identity domain.Identity, limit int) ([]domain.Order, error) {
	if err := requireIdentity("lifecycle.list_orders", identity); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return c.orders.ListByCustomer(ctx, identity.UserID, limit)
}

// Timeline возвращает события заказа в хронологическом порядке.
func (c *Controller) Timeline(ctx context.Context, identity domain.Identity, orderID string) ([]domain.TimelineEvent, error) {
	order, err := c.getOwned(ctx, "lifecycle.timeline", identity, orderID)
	if err != nil {
		return nil, err
	}
	if c.timeline == nil {
		return nil, nil
	}
	events, err := c.timeline.List(ctx, order.ID)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "lifecycle.timeline", err)
	}
	return events, nil
}

// Cancel отменяет заказ до оплаты. Конкурентные изменения повторяются на свежем состоянии.
func (c *Controller) Cancel(ctx context.Context, identity domain.Identity, orderID, reason string) (domain.Order, error) {
	const op = "lifecycle.cancel"
	defer c.metrics.StartOperation("cancel")()

	reason = strings.TrimSpace(reason)
	order, err := c.getOwned(ctx, op, identity, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.CancelAttempts; attempt++ {
		if !order.Status.Cancellable() {
			return domain.Order{}, domain.NewError(domain.ErrInvalidState, op,
				"order in status "+string(order.Status)+" cannot be cancelled")
		}

		updated, err := c.transition(ctx, domain.TransitionRequest{
			OrderID:     order.ID,
			Expected:    order.Status,
			Next:        domain.OrderStatusCancelled,
			ClearIntent: true,
		}, domain.EventOrderCanceled, reason, map[string]any{"cancelled_by": identity.UserID})
		if err == nil {
			return updated, nil
		}
		if !domain.IsConflict(err) {
			return domain.Order{}, err
		}

		lastErr = err
		c.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"attempt":  attempt,
		}).Warn("cancel conflicted with concurrent update, retrying")

		order, err = c.orders.Get(ctx, order.ID)
		if err != nil {
			return domain.Order{}, err
		}
	}
	return domain.Order{}, lastErr
}

// Advance выполняет административные переходы выполнения: PAID → FULFILLING → DELIVERED.
func (c *Controller) Advance(ctx context.Context, identity domain.Identity, orderID string, next domain.OrderStatus) (domain.Order, error) {
	const op = "lifecycle.advance"
	defer c.metrics.StartOperation("advance")()

	if err := requireIdentity(op, identity); err != nil {
		return domain.Order{}, err
	}
	if !identity.IsAdmin() {
		return domain.Order{}, domain.NewError(domain.ErrAuthorization, op, "admin role is required")
	}
	if next != domain.OrderStatusFulfilling && next != domain.OrderStatusDelivered {
		return domain.Order{}, domain.NewError(domain.ErrValidation, op, "status must be FULFILLING or DELIVERED")
	}
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}

	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status == next {
		return order, nil
	}
	if !domain.CanTransition(order.Status, next) {
		return domain.Order{}, domain.NewError(domain.ErrInvalidState, op,
			"cannot move order from "+string(order.Status)+" to "+string(next))
	}

	return c.transition(ctx, domain.TransitionRequest{
		OrderID:  order.ID,
		Expected: order.Status,
		Next:     next,
	}, domain.EventOrderStatusChanged, "", map[string]any{
		"from":        string(order.Status),
		"to":          string(next),
		"advanced_by": identity.UserID,
	})
}
