package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	opTimeout = 2 * time.Second

	defaultKeyPrefix = "storefront"
)

// Store держит клиент Redis и префикс ключей сервиса.
type Store struct {
	client *goredis.Client
	prefix string
}

// Open подключается к Redis и проверяет доступность.
func Open(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewStore(client), nil
}

// NewStore оборачивает уже созданный клиент.
func NewStore(client *goredis.Client) *Store {
	return &Store{client: client, prefix: defaultKeyPrefix}
}

// Ping проверяет доступность Redis.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("redis store is not initialized")
	}

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.client.Ping(pingCtx).Err()
}

// Close закрывает клиент.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) key(kind, id string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, kind, id)
}
