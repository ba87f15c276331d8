package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const idempotencyColumns = `key, request_hash, status, http_status, content_type, response_body, ttl_at, created_at, updated_at`

type idempotencyRepository struct {
	store *Store
	now   func() time.Time
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Reserve вставляет запись processing. Истёкшая строка с тем же ключом переписывается
// тем же запросом, живая остаётся нетронутой и возвращается вызывающему.
func (r *idempotencyRepository) Reserve(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	fresh, err := domain.NewIdempotencyRecord(strings.TrimSpace(key), strings.TrimSpace(requestHash), ttlAt, r.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	var reserved string
	err = r.store.DB().QueryRowContext(ctx, `INSERT INTO idempotency_keys
		(key, request_hash, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (key) DO UPDATE SET
			request_hash = EXCLUDED.request_hash,
			status = EXCLUDED.status,
			http_status = NULL,
			content_type = '',
			response_body = NULL,
			ttl_at = EXCLUDED.ttl_at,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
		WHERE idempotency_keys.ttl_at <= EXCLUDED.created_at
		RETURNING key`,
		fresh.Key, fresh.RequestHash, string(fresh.Status), fresh.TTLAt, fresh.CreatedAt,
	).Scan(&reserved)
	switch {
	case err == nil:
		return fresh, nil
	case !errors.Is(err, sql.ErrNoRows):
		return domain.IdempotencyRecord{}, storageErr("postgres.idempotency.reserve", err)
	}

	held, err := r.Get(ctx, fresh.Key)
	if err != nil {
		// Строку успели удалить между INSERT и SELECT: клиент повторит запрос.
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyAlreadyExists
	}
	return held, domain.ReserveConflict(held, fresh.RequestHash)
}

// Get не видит истёкшие записи, даже если очистка их ещё не удалила.
func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	row := r.store.DB().QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1 AND ttl_at > $2`, key, r.now())
	record, err := scanIdempotencyRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, storageErr("postgres.idempotency.get", err)
	}
	return record, nil
}

func (r *idempotencyRepository) Complete(ctx context.Context, key string, resp domain.StoredResponse) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	res, err := r.store.DB().ExecContext(ctx, `UPDATE idempotency_keys
		SET status = $2, http_status = $3, content_type = $4, response_body = $5, updated_at = $6
		WHERE key = $1`,
		key, string(resp.CompletionStatus()), resp.HTTPStatus, resp.ContentType, resp.Body, r.now())
	if err != nil {
		return storageErr("postgres.idempotency.complete", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return storageErr("postgres.idempotency.complete", err)
	} else if n == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

// DeleteExpired удаляет самые старые истёкшие записи пачкой через подзапрос с LIMIT.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := r.store.withTimeout(ctx)
	defer cancel()

	var (
		res sql.Result
		err error
	)
	if limit > 0 {
		res, err = r.store.DB().ExecContext(ctx, `DELETE FROM idempotency_keys WHERE key IN (
			SELECT key FROM idempotency_keys WHERE ttl_at <= $1 ORDER BY ttl_at LIMIT $2)`, before, limit)
	} else {
		res, err = r.store.DB().ExecContext(ctx, `DELETE FROM idempotency_keys WHERE ttl_at <= $1`, before)
	}
	if err != nil {
		return 0, storageErr("postgres.idempotency.delete_expired", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("postgres.idempotency.delete_expired", err)
	}
	return int(n), nil
}

func scanIdempotencyRecord(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		record     domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	if err := row.Scan(
		&record.Key, &record.RequestHash, &status, &httpStatus,
		&record.Response.ContentType, &record.Response.Body,
		&record.TTLAt, &record.CreatedAt, &record.UpdatedAt,
	); err != nil {
		return domain.IdempotencyRecord{}, err
	}

	record.Status = domain.IdempotencyStatus(status)
	if !record.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown idempotency status %q for key %s", status, record.Key)
	}
	if httpStatus.Valid {
		record.Response.HTTPStatus = int(httpStatus.Int64)
	}
	record.TTLAt = record.TTLAt.UTC()
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
