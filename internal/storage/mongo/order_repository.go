package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type orderItemDocument struct {
	ID             string `bson:"id"`
	ProductID      string `bson:"productId"`
	Name           string `bson:"name"`
	Qty            int32  `bson:"qty"`
	UnitPriceMinor int64  `bson:"unitPriceMinor"`
}

type addressDocument struct {
	Street     string `bson:"street"`
	City       string `bson:"city"`
	Region     string `bson:"region"`
	PostalCode string `bson:"postalCode"`
	Country    string `bson:"country"`
}

type intentDocument struct {
	Method      string            `bson:"method"`
	ProviderRef string            `bson:"providerRef"`
	AmountMinor int64             `bson:"amountMinor"`
	Currency    string            `bson:"currency"`
	Handle      map[string]string `bson:"handle,omitempty"`
	CreatedAt   time.Time         `bson:"createdAt"`
}

type paymentDocument struct {
	Provider          string    `bson:"provider"`
	ProviderPaymentID string    `bson:"providerPaymentId"`
	ProviderOrderID   string    `bson:"providerOrderId"`
	TrustLevel        string    `bson:"trustLevel"`
	ConfirmedAt       time.Time `bson:"confirmedAt"`
}

// orderDocument — представление заказа в коллекции orders.
type orderDocument struct {
	ID              string              `bson:"_id"`
	CustomerID      string              `bson:"customerId"`
	Status          string              `bson:"status"`
	Currency        string              `bson:"currency"`
	Items           []orderItemDocument `bson:"items"`
	SubtotalMinor   int64               `bson:"subtotalMinor"`
	FeesMinor       int64               `bson:"feesMinor"`
	AmountMinor     int64               `bson:"amountMinor"`
	ShippingAddress addressDocument     `bson:"shippingAddress"`
	PaymentMethod   string              `bson:"paymentMethod"`
	Intent          *intentDocument     `bson:"paymentIntent"`
	Payment         *paymentDocument    `bson:"paymentDetails"`
	Version         int64               `bson:"version"`
	CreatedAt       time.Time           `bson:"createdAt"`
	UpdatedAt       time.Time           `bson:"updatedAt"`
}

type orderRepository struct {
	orders *mongo.Collection
	now    func() time.Time
}

// NewOrderRepository создаёт MongoDB-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{
		orders: store.Database().Collection(ordersCollection),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	if err := domain.ValidateNew(order); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if _, err := r.orders.InsertOne(ctx, toDocument(order)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrOrderAlreadyExists
		}
		return storageErr("mongo.create", fmt.Errorf("insert order: %w", err))
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var doc orderDocument
	if err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, storageErr("mongo.get", fmt.Errorf("find order: %w", err))
	}
	return fromDocument(doc), nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.orders.Find(ctx, bson.M{"customerId": customerID}, opts)
	if err != nil {
		return nil, storageErr("mongo.list", fmt.Errorf("find orders: %w", err))
	}
	defer cursor.Close(ctx)

	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageErr("mongo.list", fmt.Errorf("decode orders: %w", err))
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, fromDocument(doc))
	}
	return orders, nil
}

// Transition выполняет FindOneAndUpdate с фильтром по статусу и версии.
func (r *orderRepository) Transition(ctx context.Context, req domain.TransitionRequest) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}

	current, err := r.Get(ctx, req.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if current.Status != req.Expected {
		return domain.Order{}, domain.ErrOrderStatusConflict
	}

	next := req.Apply(current, r.now())
	doc := toDocument(next)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{"_id": req.OrderID, "status": string(req.Expected), "version": current.Version}
	update := bson.M{"$set": bson.M{
		"status":         doc.Status,
		"paymentIntent":  doc.Intent,
		"paymentDetails": doc.Payment,
		"version":        doc.Version,
		"updatedAt":      doc.UpdatedAt,
	}}

	var updated orderDocument
	err = r.orders.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Order{}, domain.ErrOrderStatusConflict
		}
		return domain.Order{}, storageErr("mongo.transition", fmt.Errorf("update order: %w", err))
	}
	return fromDocument(updated), nil
}

func toDocument(order domain.Order) orderDocument {
	doc := orderDocument{
		ID:            order.ID,
		CustomerID:    order.CustomerID,
		Status:        string(order.Status),
		Currency:      order.Currency,
		Items:         make([]orderItemDocument, 0, len(order.Items)),
		SubtotalMinor: order.SubtotalMinor,
		FeesMinor:     order.FeesMinor,
		AmountMinor:   order.AmountMinor,
		ShippingAddress: addressDocument{
			Street:     order.ShippingAddress.Street,
			City:       order.ShippingAddress.City,
			Region:     order.ShippingAddress.Region,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		PaymentMethod: string(order.PaymentMethod),
		Version:       order.Version,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	for _, item := range order.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}
	if in := order.Intent; in != nil {
		doc.Intent = &intentDocument{
			Method:      string(in.Method),
			ProviderRef: in.ProviderRef,
			AmountMinor: in.AmountMinor,
			Currency:    in.Currency,
			Handle:      in.Handle,
			CreatedAt:   in.CreatedAt,
		}
	}
	if p := order.Payment; p != nil {
		doc.Payment = &paymentDocument{
			Provider:          string(p.Provider),
			ProviderPaymentID: p.ProviderPaymentID,
			ProviderOrderID:   p.ProviderOrderID,
			TrustLevel:        string(p.TrustLevel),
			ConfirmedAt:       p.ConfirmedAt,
		}
	}
	return doc
}

func fromDocument(doc orderDocument) domain.Order {
	order := domain.Order{
		ID:            doc.ID,
		CustomerID:    doc.CustomerID,
		Status:        domain.OrderStatus(doc.Status),
		Currency:      doc.Currency,
		Items:         make([]domain.OrderItem, 0, len(doc.Items)),
		SubtotalMinor: doc.SubtotalMinor,
		FeesMinor:     doc.FeesMinor,
		AmountMinor:   doc.AmountMinor,
		ShippingAddress: domain.Address{
			Street:     doc.ShippingAddress.Street,
			City:       doc.ShippingAddress.City,
			Region:     doc.ShippingAddress.Region,
			PostalCode: doc.ShippingAddress.PostalCode,
			Country:    doc.ShippingAddress.Country,
		},
		PaymentMethod: domain.PaymentMethod(doc.PaymentMethod),
		Version:       doc.Version,
		CreatedAt:     doc.CreatedAt.UTC(),
		UpdatedAt:     doc.UpdatedAt.UTC(),
	}
	for _, item := range doc.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:             item.ID,
			ProductID:      item.ProductID,
			Name:           item.Name,
			Qty:            item.Qty,
			UnitPriceMinor: item.UnitPriceMinor,
		})
	}
	if in := doc.Intent; in != nil {
		order.Intent = &domain.PaymentIntent{
			Method:      domain.PaymentMethod(in.Method),
			ProviderRef: in.ProviderRef,
			AmountMinor: in.AmountMinor,
			Currency:    in.Currency,
			Handle:      in.Handle,
			CreatedAt:   in.CreatedAt.UTC(),
		}
	}
	if p := doc.Payment; p != nil {
		order.Payment = &domain.PaymentDetails{
			Provider:          domain.PaymentMethod(p.Provider),
			ProviderPaymentID: p.ProviderPaymentID,
			ProviderOrderID:   p.ProviderOrderID,
			TrustLevel:        domain.TrustLevel(p.TrustLevel),
			ConfirmedAt:       p.ConfirmedAt.UTC(),
		}
	}
	return order
}

func storageErr(op string, err error) error {
	return domain.WrapError(domain.ErrStorage, op, err)
}

var _ domain.OrderRepository = (*orderRepository)(nil)
