package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// storedIdempotency — JSON под ключом storefront:idem:<key>. TTL ключа совпадает с ttl_at.
type storedIdempotency struct {
	RequestHash string    `json:"request_hash"`
	Status      string    `json:"status"`
	HTTPStatus  int       `json:"http_status,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	Body        []byte    `json:"body,omitempty"`
	TTLAt       time.Time `json:"ttl_at"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toStored(rec domain.IdempotencyRecord) storedIdempotency {
	return storedIdempotency{
		RequestHash: rec.RequestHash,
		Status:      string(rec.Status),
		HTTPStatus:  rec.Response.HTTPStatus,
		ContentType: rec.Response.ContentType,
		Body:        rec.Response.Body,
		TTLAt:       rec.TTLAt,
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
}

func (s storedIdempotency) record(key string) domain.IdempotencyRecord {
	return domain.IdempotencyRecord{
		Key:         key,
		RequestHash: s.RequestHash,
		Status:      domain.IdempotencyStatus(s.Status),
		Response:    domain.StoredResponse{HTTPStatus: s.HTTPStatus, ContentType: s.ContentType, Body: s.Body},
		TTLAt:       s.TTLAt.UTC(),
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
}

type idempotencyRepository struct {
	store *Store
	now   func() time.Time
}

// NewIdempotencyRepository хранит ответы в Redis; истечение делает сам Redis через PEXPIRE.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	now := r.now()
	fresh, err := domain.NewIdempotencyRecord(strings.TrimSpace(key), strings.TrimSpace(requestHash), ttlAt, now)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	payload, err := json.Marshal(toStored(fresh))
	if err != nil {
		return domain.IdempotencyRecord{}, storageErr("redis.idempotency.reserve", err)
	}

	// Запись с ttl_at в прошлом живёт миллисекунду и не блокирует ключ.
	expiry := max(fresh.TTLAt.Sub(now), time.Millisecond)

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	won, err := r.store.client.SetNX(ctx, r.store.key("idem", fresh.Key), payload, expiry).Result()
	if err != nil {
		return domain.IdempotencyRecord{}, storageErr("redis.idempotency.reserve", err)
	}
	if won {
		return fresh, nil
	}

	held, err := r.Get(ctx, fresh.Key)
	if err != nil {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	return held, domain.ReserveConflict(held, fresh.RequestHash)
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := r.store.client.Get(ctx, r.store.key("idem", key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, storageErr("redis.idempotency.get", err)
	}

	var stored storedIdempotency
	if err := json.Unmarshal(raw, &stored); err != nil {
		return domain.IdempotencyRecord{}, storageErr("redis.idempotency.get", fmt.Errorf("decode %s: %w", key, err))
	}
	return stored.record(key), nil
}

// Complete переписывает значение в WATCH-транзакции с KEEPTTL, чтобы не продлить запись.
func (r *idempotencyRepository) Complete(ctx context.Context, key string, resp domain.StoredResponse) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	redisKey := r.store.key("idem", key)
	err := r.store.client.Watch(ctx, func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, redisKey).Bytes()
		if errors.Is(err, goredis.Nil) {
			return domain.ErrIdempotencyKeyNotFound
		}
		if err != nil {
			return err
		}

		var stored storedIdempotency
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		payload, err := json.Marshal(toStored(stored.record(key).Complete(resp, r.now())))
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, redisKey, payload, goredis.KeepTTL)
			return nil
		})
		return err
	}, redisKey)
	if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		return err
	}
	if err != nil {
		return storageErr("redis.idempotency.complete", err)
	}
	return nil
}

// DeleteExpired ничего не удаляет: истёкшие ключи Redis убирает сам.
func (r *idempotencyRepository) DeleteExpired(context.Context, time.Time, int) (int, error) {
	return 0, nil
}

func storageErr(op string, err error) error {
	return domain.WrapError(domain.ErrStorage, op, err)
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
