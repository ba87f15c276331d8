// Package cart реализует серверную корзину, привязанную к идентичности.
package cart

import (
	"context"
	"errors"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// maxItemQty ограничивает количество одного товара в корзине.
const maxItemQty = 1000

// Item — позиция корзины с ценой из каталога на момент чтения.
type Item struct {
	ProductID      string `json:"productId"`
	Name           string `json:"name"`
	Qty            int32  `json:"qty"`
	UnitPriceMinor int64  `json:"unitPriceMinor"`
	LineTotalMinor int64  `json:"lineTotalMinor"`
	Available      bool   `json:"available"`
}

// View — корзина для клиента. Цены справочные: при оформлении заказа они берутся заново.
type View struct {
	CustomerID    string    `json:"customerId"`
	Items         []Item    `json:"items"`
	SubtotalMinor int64     `json:"subtotalMinor"`
	Currency      string    `json:"currency"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Service управляет корзинами.
type Service struct {
	carts    domain.CartRepository
	catalog  domain.Catalog
	currency string
	logger   *log.Entry
	now      func() time.Time
}

// NewService создаёт сервис корзины.
func NewService(carts domain.CartRepository, catalog domain.Catalog, currency string, logger *log.Entry) *Service {
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	if logger == nil {
		logger = log.New().WithField("component", "cart")
	}
	return &Service{
		carts:    carts,
		catalog:  catalog,
		currency: currency,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Get возвращает корзину с ценами каталога. Удалённые из каталога товары помечаются недоступными.
func (s *Service) Get(ctx context.Context, identity domain.Identity) (View, error) {
	if err := requireIdentity(identity); err != nil {
		return View{}, err
	}
	cart, err := s.carts.Get(ctx, identity.UserID)
	if err != nil {
		return View{}, err
	}
	return s.view(ctx, cart)
}

// Add добавляет товар; товар должен существовать в каталоге.
func (s *Service) Add(ctx context.Context, identity domain.Identity, productID string, qty int32) (View, error) {
	if qty <= 0 {
		return View{}, domain.ErrItemQtyInvalid
	}
	return s.mutate(ctx, identity, productID, true, func(cart *domain.Cart, productID string) error {
		cart.Add(productID, qty)
		return nil
	})
}

// SetQty задаёт количество товара; qty = 0 удаляет позицию.
func (s *Service) SetQty(ctx context.Context, identity domain.Identity, productID string, qty int32) (View, error) {
	if qty < 0 {
		return View{}, domain.ErrItemQtyInvalid
	}
	return s.mutate(ctx, identity, productID, qty > 0, func(cart *domain.Cart, productID string) error {
		if qty == 0 && !cart.Remove(productID) {
			return domain.ErrCartItemNotFound
		}
		cart.SetQty(productID, qty)
		return nil
	})
}

// Remove удаляет позицию из корзины.
func (s *Service) Remove(ctx context.Context, identity domain.Identity, productID string) (View, error) {
	return s.mutate(ctx, identity, productID, false, func(cart *domain.Cart, productID string) error {
		if !cart.Remove(productID) {
			return domain.ErrCartItemNotFound
		}
		return nil
	})
}

// Clear удаляет корзину целиком.
func (s *Service) Clear(ctx context.Context, identity domain.Identity) error {
	if err := requireIdentity(identity); err != nil {
		return err
	}
	return s.carts.Delete(ctx, identity.UserID)
}

func (s *Service) mutate(ctx context.Context, identity domain.Identity, productID string, checkProduct bool, apply func(*domain.Cart, string) error) (View, error) {
	if err := requireIdentity(identity); err != nil {
		return View{}, err
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return View{}, domain.ErrItemProductRequired
	}
	if checkProduct {
		product, err := s.catalog.Product(ctx, productID)
		if err != nil {
			return View{}, err
		}
		if !product.Available {
			return View{}, domain.ErrProductUnavailable
		}
	}

	cart, err := s.carts.Get(ctx, identity.UserID)
	if err != nil {
		return View{}, err
	}
	cart.CustomerID = identity.UserID
	if err := apply(&cart, productID); err != nil {
		return View{}, err
	}
	for _, item := range cart.Items {
		if item.Qty <= 0 || item.Qty > maxItemQty {
			return View{}, domain.ErrItemQtyInvalid
		}
	}
	cart.UpdatedAt = s.now()

	if err := s.carts.Save(ctx, cart); err != nil {
		s.logger.WithError(err).WithField("customer_id", identity.UserID).Error("failed to save cart")
		return View{}, err
	}
	return s.view(ctx, cart)
}

func (s *Service) view(ctx context.Context, cart domain.Cart) (View, error) {
	out := View{
		CustomerID: cart.CustomerID,
		Items:      make([]Item, 0, len(cart.Items)),
		Currency:   s.currency,
		UpdatedAt:  cart.UpdatedAt,
	}
	for _, ci := range cart.Items {
		item := Item{ProductID: ci.ProductID, Qty: ci.Qty}
		product, err := s.catalog.Product(ctx, ci.ProductID)
		switch {
		case err == nil:
			item.Name = product.Name
			item.UnitPriceMinor = product.PriceMinor
			item.LineTotalMinor = int64(ci.Qty) * product.PriceMinor
			item.Available = product.Available
		case errors.Is(err, domain.ErrProductNotFound):
			// Товар сняли с продажи: позиция остаётся, но в сумму не входит.
		default:
			return View{}, err
		}
		if item.Available {
			out.SubtotalMinor += item.LineTotalMinor
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func requireIdentity(identity domain.Identity) error {
	if identity.Anonymous() {
		return domain.NewError(domain.ErrAuthentication, "cart", "bearer credential is required")
	}
	return nil
}
