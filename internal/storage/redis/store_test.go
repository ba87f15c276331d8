package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	store, err := Open(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestIdempotencyRepository_ReserveAndComplete(t *testing.T) {
	store, mr := newTestStore(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()
	ttl := time.Now().UTC().Add(time.Hour).Round(time.Second)

	reserved, err := repo.Reserve(ctx, "alice:orders:k1", "hash-1", ttl)
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusProcessing, reserved.Status)
	require.Positive(t, mr.TTL("storefront:idem:alice:orders:k1"))

	held, err := repo.Reserve(ctx, "alice:orders:k1", "hash-1", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyAlreadyExists)
	require.Equal(t, domain.IdempotencyStatusProcessing, held.Status)
	_, err = repo.Reserve(ctx, "alice:orders:k1", "hash-2", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyHashMismatch)

	require.NoError(t, repo.Complete(ctx, "alice:orders:k1", domain.StoredResponse{
		HTTPStatus: 201, ContentType: "application/json", Body: []byte(`{"id":"o1"}`),
	}))
	got, err := repo.Get(ctx, "alice:orders:k1")
	require.NoError(t, err)
	require.Equal(t, "alice:orders:k1", got.Key)
	require.Equal(t, domain.IdempotencyStatusDone, got.Status)
	require.Equal(t, 201, got.Response.HTTPStatus)
	require.Equal(t, "application/json", got.Response.ContentType)
	require.JSONEq(t, `{"id":"o1"}`, string(got.Response.Body))
	require.True(t, got.TTLAt.Equal(ttl))
	require.Positive(t, mr.TTL("storefront:idem:alice:orders:k1"), "complete must keep ttl")

	require.NoError(t, repo.Complete(ctx, "alice:orders:k1", domain.StoredResponse{HTTPStatus: 503}))
	got, err = repo.Get(ctx, "alice:orders:k1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, got.Status)

	require.ErrorIs(t, repo.Complete(ctx, "missing", domain.StoredResponse{HTTPStatus: 500}), domain.ErrIdempotencyKeyNotFound)
	_, err = repo.Reserve(ctx, " ", "hash", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyRequired)
}

func TestIdempotencyRepository_ExpiresByTTL(t *testing.T) {
	store, mr := newTestStore(t)
	repo := NewIdempotencyRepository(store)
	ctx := context.Background()

	_, err := repo.Reserve(ctx, "idem-exp", "hash", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = repo.Get(ctx, "idem-exp")
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)

	removed, err := repo.DeleteExpired(ctx, time.Now(), 10)
	require.NoError(t, err)
	require.Zero(t, removed)

	_, err = repo.Reserve(ctx, "idem-exp", "other-hash", time.Now().UTC().Add(time.Minute))
	require.NoError(t, err)
}

func TestCartRepository_RoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	repo := NewCartRepository(store, time.Hour)
	ctx := context.Background()

	empty, err := repo.Get(ctx, "customer-1")
	require.NoError(t, err)
	require.Empty(t, empty.Items)

	cart := domain.Cart{CustomerID: "customer-1", UpdatedAt: time.Now().UTC().Round(time.Second)}
	cart.Add("p1", 3)
	require.NoError(t, repo.Save(ctx, cart))
	require.Equal(t, time.Hour, mr.TTL("storefront:cart:customer-1"))

	stored, err := repo.Get(ctx, "customer-1")
	require.NoError(t, err)
	require.Equal(t, cart.Items, stored.Items)

	require.NoError(t, repo.Delete(ctx, "customer-1"))
	require.False(t, mr.Exists("storefront:cart:customer-1"))
}

func TestStore_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewStore(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	require.NoError(t, store.Ping(context.Background()))

	mr.Close()
	repo := NewCartRepository(store, 0)
	_, err := repo.Get(context.Background(), "customer-1")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrStorage))

	var nilStore *Store
	require.Error(t, nilStore.Ping(context.Background()))
	require.NoError(t, nilStore.Close())
}
