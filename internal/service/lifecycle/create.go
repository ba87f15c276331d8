package lifecycle

import (
	"context"
	"fmt"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// maxSubtotalMinor ограничивает сумму так, чтобы расчёт сбора не переполнял int64.
const maxSubtotalMinor = 100_000_000_000_000

// ItemInput — позиция заказа в запросе клиента. Цена берётся из каталога.
type ItemInput struct {
	ProductID string
	Qty       int64
}

// CreateOrderInput — запрос на создание заказа.
type CreateOrderInput struct {
	Items []ItemInput
	// FromCart берёт позиции из серверной корзины и очищает её после успеха.
	FromCart        bool
	ShippingAddress domain.Address
	PaymentMethod   string
}

// CreateOrder создаёт заказ в статусе CREATED с ценами из каталога на момент создания.
func (c *Controller) CreateOrder(ctx context.Context, identity domain.Identity, input CreateOrderInput) (domain.Order, error) {
	const op = "lifecycle.create_order"
	defer c.metrics.StartOperation("create_order")()

	if err := requireIdentity(op, identity); err != nil {
		return domain.Order{}, err
	}
	method, err := domain.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return domain.Order{}, err
	}
	if !input.ShippingAddress.Complete() {
		return domain.Order{}, domain.ErrAddressIncomplete
	}

	requested := input.Items
	if input.FromCart {
		requested, err = c.cartItems(ctx, identity.UserID)
		if err != nil {
			return domain.Order{}, err
		}
	}
	lines, err := mergeItems(requested)
	if err != nil {
		return domain.Order{}, err
	}

	items := make([]domain.OrderItem, 0, len(lines))
	var subtotal int64
	for _, line := range lines {
		product, err := c.resolveProduct(ctx, line.ProductID)
		if err != nil {
			return domain.Order{}, err
		}
		item := domain.OrderItem{
			ID:             c.newID(),
			ProductID:      product.ID,
			Name:           product.Name,
			Qty:            int32(line.Qty),
			UnitPriceMinor: product.PriceMinor,
		}
		lineTotal := item.LineTotalMinor()
		if product.PriceMinor != 0 && lineTotal/product.PriceMinor != int64(item.Qty) || subtotal+lineTotal > maxSubtotalMinor {
			return domain.Order{}, domain.NewError(domain.ErrValidation, op, "order total is too large")
		}
		subtotal += lineTotal
		items = append(items, item)
	}

	fees := domain.FeeMinor(subtotal, c.cfg.FeeRateBps)
	now := c.now()
	order := domain.Order{
		ID:              c.newID(),
		CustomerID:      identity.UserID,
		Status:          domain.OrderStatusCreated,
		Currency:        c.cfg.Currency,
		Items:           items,
		SubtotalMinor:   subtotal,
		FeesMinor:       fees,
		AmountMinor:     subtotal + fees,
		ShippingAddress: input.ShippingAddress,
		PaymentMethod:   method,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := c.orders.Create(ctx, order); err != nil {
		c.logger.WithError(err).WithField("customer_id", identity.UserID).Error("failed to create order")
		return domain.Order{}, err
	}

	c.metrics.RecordOrderCreated()
	c.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"customer_id":  order.CustomerID,
		"amount_minor": order.AmountMinor,
		"provider":     order.PaymentMethod,
	}).Info("order created")
	c.emit(ctx, order, domain.EventOrderCreated, "", map[string]any{
		"payment_method": string(order.PaymentMethod),
		"items_count":    len(order.Items),
	})

	if input.FromCart {
		if err := c.carts.Delete(ctx, identity.UserID); err != nil {
			c.logger.WithError(err).WithField("customer_id", identity.UserID).Warn("failed to clear cart after checkout")
		}
	}
	return order, nil
}

func (c *Controller) cartItems(ctx context.Context, customerID string) ([]ItemInput, error) {
	if c.carts == nil {
		return nil, domain.NewError(domain.ErrValidation, "lifecycle.create_order", "server cart is not enabled")
	}
	cart, err := c.carts.Get(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, domain.ErrCartEmpty
	}
	out := make([]ItemInput, 0, len(cart.Items))
	for _, item := range cart.Items {
		out = append(out, ItemInput{ProductID: item.ProductID, Qty: int64(item.Qty)})
	}
	return out, nil
}

// mergeItems склеивает повторы товара, сохраняя порядок первого появления.
func mergeItems(items []ItemInput) ([]ItemInput, error) {
	if len(items) == 0 {
		return nil, domain.ErrItemsRequired
	}

	index := make(map[string]int, len(items))
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, domain.ErrItemProductRequired
		}
		if item.Qty <= 0 {
			return nil, domain.ErrItemQtyInvalid
		}
		if i, ok := index[productID]; ok {
			out[i].Qty += item.Qty
		} else {
			index[productID] = len(out)
			out = append(out, ItemInput{ProductID: productID, Qty: item.Qty})
		}
	}
	for _, item := range out {
		if item.Qty > math.MaxInt32 {
			return nil, domain.ErrItemQtyInvalid
		}
	}
	return out, nil
}

// resolveProduct приводит ошибки каталога к таксономии: неизвестный товар даёт ошибку валидации,
// недоступность каталога даёт ошибку провайдера.
func (c *Controller) resolveProduct(ctx context.Context, productID string) (domain.Product, error) {
	const op = "lifecycle.resolve_product"

	product, err := c.catalog.Product(ctx, productID)
	if err != nil {
		if domain.KindOf(err) != nil {
			return domain.Product{}, err
		}
		return domain.Product{}, domain.WrapError(domain.ErrProvider, op, err)
	}
	if !product.Available {
		return domain.Product{}, fmt.Errorf("%w: %s", domain.ErrProductUnavailable, productID)
	}
	if product.PriceMinor < 0 {
		return domain.Product{}, domain.ErrItemPriceInvalid
	}
	if product.Currency != "" && product.Currency != c.cfg.Currency {
		return domain.Product{}, domain.NewError(domain.ErrValidation, op, "product "+productID+" is priced in "+product.Currency)
	}
	if product.ID == "" {
		product.ID = productID
	}
	return product, nil
}
