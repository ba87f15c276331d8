package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnTimeout = 5 * time.Second
	opTimeout          = 5 * time.Second

	ordersCollection   = "orders"
	timelineCollection = "timeline_events"
)

// Store оборачивает клиент MongoDB и выбранную базу.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open подключается к MongoDB, проверяет доступность и создаёт индексы.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		return nil, fmt.Errorf("mongo database name is required")
	}

	connectCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(defaultConnTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	store := &Store{client: client, db: client.Database(database)}
	if err := store.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return store, nil
}

// Database возвращает базу, когда нужен низкоуровневый доступ.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Ping проверяет доступность сервера.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("mongo store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.client.Ping(pingCtx, readpref.Primary())
}

// Close разрывает соединение.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(ordersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "customerId", Value: 1}, {Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}},
		Options: options.Index().SetName("customer_created"),
	})
	if err != nil {
		return fmt.Errorf("create orders index: %w", err)
	}
	_, err = s.db.Collection(timelineCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "orderId", Value: 1}, {Key: "occurred", Value: 1}},
		Options: options.Index().SetName("order_occurred"),
	})
	if err != nil {
		return fmt.Errorf("create timeline index: %w", err)
	}
	return nil
}
