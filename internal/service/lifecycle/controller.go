// Package lifecycle реализует контроллер жизненного цикла заказа:
// создание, инициацию и подтверждение оплаты, отмену и выполнение.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/payment"
)

const (
	defaultListLimit      = 50
	maxListLimit          = 200
	defaultCancelAttempts = 3
)

// Config — параметры политики заказа.
type Config struct {
	// Currency — валюта заказов. Пустое значение означает domain.DefaultCurrency.
	Currency string
	// FeeRateBps — объявленный сбор в базисных пунктах от subtotal.
	FeeRateBps int64
	// CancelAttempts ограничивает повторы отмены при конкурентных изменениях.
	CancelAttempts int
}

// Dependencies — хранилища и внешние сервисы контроллера.
// Timeline, Outbox, Carts и Metrics необязательны.
type Dependencies struct {
	Orders   domain.OrderRepository
	Timeline domain.TimelineRepository
	Outbox   domain.OutboxRepository
	Catalog  domain.Catalog
	Carts    domain.CartRepository
	Payments *payment.Registry
	Metrics  *metrics.LifecycleMetrics
}

// Controller — единственная точка изменения статуса заказа.
type Controller struct {
	orders   domain.OrderRepository
	timeline domain.TimelineRepository
	outbox   domain.OutboxRepository
	catalog  domain.Catalog
	carts    domain.CartRepository
	payments *payment.Registry
	metrics  *metrics.LifecycleMetrics
	logger   *log.Entry
	cfg      Config

	now   func() time.Time
	newID func() string
}

// NewController проверяет зависимости и создаёт контроллер.
func NewController(deps Dependencies, cfg Config, logger *log.Entry) (*Controller, error) {
	if deps.Orders == nil {
		return nil, errors.New("lifecycle: order repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("lifecycle: catalog is required")
	}
	if deps.Payments == nil {
		deps.Payments = payment.NewRegistry()
	}
	if cfg.Currency == "" {
		cfg.Currency = domain.DefaultCurrency
	}
	if cfg.FeeRateBps < 0 || cfg.FeeRateBps > 10000 {
		return nil, errors.New("lifecycle: fee rate must be within 0..10000 bps")
	}
	if cfg.CancelAttempts <= 0 {
		cfg.CancelAttempts = defaultCancelAttempts
	}
	if logger == nil {
		logger = log.New().WithField("component", "lifecycle")
	}

	return &Controller{
		orders:   deps.Orders,
		timeline: deps.Timeline,
		outbox:   deps.Outbox,
		catalog:  deps.Catalog,
		carts:    deps.Carts,
		payments: deps.Payments,
		metrics:  deps.Metrics,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}, nil
}

// Payments возвращает реестр адаптеров.
func (c *Controller) Payments() *payment.Registry {
	return c.payments
}

func requireIdentity(op string, identity domain.Identity) error {
	if identity.Anonymous() {
		return domain.NewError(domain.ErrAuthentication, op, "bearer credential is required")
	}
	return nil
}

// getOwned читает заказ и проверяет, что identity может его видеть.
func (c *Controller) getOwned(ctx context.Context, op string, identity domain.Identity, orderID string) (domain.Order, error) {
	if err := requireIdentity(op, identity); err != nil {
		return domain.Order{}, err
	}
	if orderID == "" {
		return domain.Order{}, domain.ErrOrderIDRequired
	}
	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !identity.CanAccess(order) {
		return domain.Order{}, domain.ErrNotOrderOwner
	}
	return order, nil
}

// transition выполняет CAS и фиксирует событие. Ошибки публикации не откатывают переход.
func (c *Controller) transition(ctx context.Context, req domain.TransitionRequest, eventType, reason string, meta map[string]any) (domain.Order, error) {
	updated, err := c.orders.Transition(ctx, req)
	if err != nil {
		return domain.Order{}, err
	}
	c.metrics.RecordTransition(string(req.Expected), string(req.Next))
	c.logger.WithFields(log.Fields{
		"order_id": updated.ID,
		"from":     req.Expected,
		"to":       req.Next,
		"version":  updated.Version,
	}).Info("order status changed")

	c.emit(ctx, updated, eventType, reason, meta)
	return updated, nil
}

// emit пишет событие в timeline и outbox. Отмена запроса клиентом не должна терять событие
// уже совершённого перехода, поэтому контекст отвязан от отмены.
func (c *Controller) emit(ctx context.Context, order domain.Order, eventType, reason string, meta map[string]any) {
	ctx = context.WithoutCancel(ctx)
	occurred := c.now()

	if c.timeline != nil {
		err := c.timeline.Append(ctx, domain.TimelineEvent{
			OrderID:  order.ID,
			Type:     eventType,
			Reason:   reason,
			Occurred: occurred,
		})
		if err != nil {
			c.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to append timeline event")
		} else {
			c.metrics.RecordTimelineEvent()
		}
	}

	if c.outbox == nil {
		return
	}

	payload := map[string]any{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"status":       string(order.Status),
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
		"version":      order.Version,
		"ts":           occurred.Format(time.RFC3339Nano),
	}
	if reason != "" {
		payload["reason"] = reason
	}
	for k, v := range meta {
		payload[k] = v
	}

	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to marshal outbox payload")
		return
	}
	if _, err := c.outbox.Enqueue(ctx, domain.OutboxMessage{
		ID:            c.newID(),
		AggregateType: domain.OrderAggregate,
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       body,
	}); err != nil {
		c.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue outbox event")
		return
	}
	c.metrics.RecordOutboxEvent()
}
