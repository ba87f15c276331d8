package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type deleterMock struct {
	mock.Mock
}

func (m *deleterMock) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	args := m.Called(ctx, before, limit)
	return args.Int(0), args.Error(1)
}

func TestDeleteExpired_DrainsFullBatches(t *testing.T) {
	t.Parallel()

	before := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	repo := new(deleterMock)
	repo.On("DeleteExpired", mock.Anything, before, 2).Return(2, nil).Twice()
	repo.On("DeleteExpired", mock.Anything, before, 2).Return(1, nil).Once()

	deleted, err := NewCleanupWorker(repo, WithBatchSize(2)).DeleteExpired(context.Background(), before)
	require.NoError(t, err)
	require.Equal(t, 5, deleted)
	repo.AssertNumberOfCalls(t, "DeleteExpired", 3)
}

func TestDeleteExpired_StopsAtMaxBatches(t *testing.T) {
	t.Parallel()

	repo := new(deleterMock)
	repo.On("DeleteExpired", mock.Anything, mock.Anything, 10).Return(10, nil)

	deleted, err := NewCleanupWorker(repo, WithBatchSize(10), WithMaxBatches(3)).
		DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	require.Equal(t, 30, deleted)
	repo.AssertNumberOfCalls(t, "DeleteExpired", 3)
}

func TestDeleteExpired_ReportsProgressBeforeFailure(t *testing.T) {
	t.Parallel()

	repo := new(deleterMock)
	repo.On("DeleteExpired", mock.Anything, mock.Anything, 10).Return(10, nil).Once()
	repo.On("DeleteExpired", mock.Anything, mock.Anything, 10).Return(0, errors.New("conn reset")).Once()

	deleted, err := NewCleanupWorker(repo, WithBatchSize(10)).DeleteExpired(context.Background(), time.Now())
	require.ErrorContains(t, err, "conn reset")
	require.Equal(t, 10, deleted)
}

func TestDeleteExpired_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	repo := new(deleterMock)
	deleted, err := NewCleanupWorker(repo).DeleteExpired(ctx, time.Now())
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, deleted)
	repo.AssertNotCalled(t, "DeleteExpired", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_MemoryStoreAndMetrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewIdempotencyRepository()
	now := time.Now().UTC()
	for _, key := range []string{"gone-1", "gone-2"} {
		_, err := repo.Reserve(ctx, key, "hash", now.Add(time.Millisecond))
		require.NoError(t, err)
	}
	_, err := repo.Reserve(ctx, "live", "hash", now.Add(time.Hour))
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	worker := NewCleanupWorker(repo, WithBatchSize(1), WithMetrics(metrics.NewWorkerMetricsWithRegisterer(registry)))
	worker.now = func() time.Time { return now.Add(time.Minute) }

	worker.sweep(ctx)

	_, err = repo.Get(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, float64(2), counterValue(t, registry, "storefront_idempotency_keys_deleted_total"))
	runs, err := testutil.GatherAndCount(registry, "storefront_idempotency_cleanup_runs_total")
	require.NoError(t, err)
	require.Equal(t, 1, runs)
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	repo := new(deleterMock)
	repo.On("DeleteExpired", mock.Anything, mock.Anything, mock.Anything).Return(0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewCleanupWorker(repo, WithInterval(5*time.Millisecond)).Run(ctx)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop after cancel")
	}
	require.NotEmpty(t, repo.Calls)
}

func counterValue(t *testing.T, registry *prometheus.Registry, name string) float64 {
	t.Helper()

	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() == name {
			return family.GetMetric()[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s is not registered", name)
	return 0
}
