package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const orderColumns = `id, customer_id, status, currency, subtotal_minor, fees_minor, amount_minor,
	payment_method, shipping_address, payment_intent, payment_details, version, created_at, updated_at`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	if err := domain.ValidateNew(order); err != nil {
		return err
	}
	address, intent, details, err := encodeOrderDocuments(order)
	if err != nil {
		return storageErr("postgres.create", err)
	}

	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	err = r.store.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			order.ID, order.CustomerID, string(order.Status), order.Currency,
			order.SubtotalMinor, order.FeesMinor, order.AmountMinor, string(order.PaymentMethod),
			address, nullableJSON(intent), nullableJSON(details), order.Version, order.CreatedAt, order.UpdatedAt,
		); err != nil {
			if isUniqueViolation(err) {
				return domain.ErrOrderAlreadyExists
			}
			return fmt.Errorf("insert order: %w", err)
		}
		for pos, item := range order.Items {
			if _, err := tx.ExecContext(ctx, `INSERT INTO order_items
				(id, order_id, position, product_id, name, qty, unit_price_minor)
				VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				item.ID, order.ID, pos, item.ProductID, item.Name, item.Qty, item.UnitPriceMinor,
			); err != nil {
				return fmt.Errorf("insert order item %d: %w", pos, err)
			}
		}
		return nil
	})
	return storageErr("postgres.create", err)
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	order, err := selectOrder(ctx, r.store.DB(), id)
	if err != nil {
		return domain.Order{}, storageErr("postgres.get", err)
	}
	return order, nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`
	args := []any{customerID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.store.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("postgres.list", fmt.Errorf("list orders: %w", err))
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, storageErr("postgres.list", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("postgres.list", fmt.Errorf("iterate order rows: %w", err))
	}

	for i := range orders {
		if orders[i].Items, err = loadItems(ctx, r.store.DB(), orders[i].ID); err != nil {
			return nil, storageErr("postgres.list", err)
		}
	}
	return orders, nil
}

// Transition выполняет compare-and-set: UPDATE срабатывает только при совпадении статуса.
func (r *orderRepository) Transition(ctx context.Context, req domain.TransitionRequest) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}

	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	var next domain.Order
	err := r.store.inTx(ctx, func(tx *sql.Tx) error {
		current, err := selectOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if current.Status != req.Expected {
			return domain.ErrOrderStatusConflict
		}

		next = req.Apply(current, time.Now().UTC())
		_, intent, details, err := encodeOrderDocuments(next)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `UPDATE orders
			SET status = $3, payment_intent = $4, payment_details = $5,
			    version = version + 1, updated_at = $6
			WHERE id = $1 AND status = $2`,
			req.OrderID, string(req.Expected), string(next.Status),
			nullableJSON(intent), nullableJSON(details), next.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		if affected, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if affected == 0 {
			return domain.ErrOrderStatusConflict
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, storageErr("postgres.transition", err)
	}
	return next, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// selectOrder читает заказ вместе с позициями; отсутствие строки даёт ErrOrderNotFound.
func selectOrder(ctx context.Context, q queryer, id string) (domain.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}
	if order.Items, err = loadItems(ctx, q, order.ID); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                    domain.Order
		status, method           string
		address, intent, details []byte
	)
	if err := row.Scan(
		&order.ID, &order.CustomerID, &status, &order.Currency,
		&order.SubtotalMinor, &order.FeesMinor, &order.AmountMinor, &method,
		&address, &intent, &details, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		return domain.Order{}, err
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(method)
	order.CreatedAt = order.CreatedAt.UTC()
	order.UpdatedAt = order.UpdatedAt.UTC()

	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return domain.Order{}, fmt.Errorf("decode shipping address: %w", err)
	}
	if len(intent) > 0 {
		order.Intent = &domain.PaymentIntent{}
		if err := json.Unmarshal(intent, order.Intent); err != nil {
			return domain.Order{}, fmt.Errorf("decode payment intent: %w", err)
		}
	}
	if len(details) > 0 {
		order.Payment = &domain.PaymentDetails{}
		if err := json.Unmarshal(details, order.Payment); err != nil {
			return domain.Order{}, fmt.Errorf("decode payment details: %w", err)
		}
	}
	return order, nil
}

func loadItems(ctx context.Context, q queryer, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, product_id, name, qty, unit_price_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Name, &item.Qty, &item.UnitPriceMinor); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

// encodeOrderDocuments сериализует JSONB-колонки; nil-указатели пишутся как SQL NULL.
func encodeOrderDocuments(order domain.Order) (address, intent, details []byte, err error) {
	if address, err = json.Marshal(order.ShippingAddress); err != nil {
		return nil, nil, nil, fmt.Errorf("encode shipping address: %w", err)
	}
	if order.Intent != nil {
		if intent, err = json.Marshal(order.Intent); err != nil {
			return nil, nil, nil, fmt.Errorf("encode payment intent: %w", err)
		}
	}
	if order.Payment != nil {
		if details, err = json.Marshal(order.Payment); err != nil {
			return nil, nil, nil, fmt.Errorf("encode payment details: %w", err)
		}
	}
	return address, intent, details, nil
}

func nullableJSON(doc []byte) any {
	if len(doc) == 0 {
		return nil
	}
	return doc
}

var _ domain.OrderRepository = (*orderRepository)(nil)
