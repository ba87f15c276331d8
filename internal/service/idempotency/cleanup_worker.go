// Package idempotency вычищает истёкшие ключи Idempotency-Key из хранилищ без собственного TTL.
package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultInterval   = 10 * time.Minute
	defaultBatchSize  = 500
	defaultMaxBatches = 100
)

// ExpiredDeleter — часть IdempotencyRepository, которая нужна очистке.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

type settings struct {
	logger     *log.Entry
	metrics    *metrics.WorkerMetrics
	interval   time.Duration
	batchSize  int
	maxBatches int
}

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*settings)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(s *settings) { s.logger = logger }
}

func WithMetrics(m *metrics.WorkerMetrics) CleanupOption {
	return func(s *settings) { s.metrics = m }
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(s *settings) { s.interval = interval }
}

// WithBatchSize ограничивает число строк в одном DELETE.
func WithBatchSize(n int) CleanupOption {
	return func(s *settings) { s.batchSize = n }
}

// WithMaxBatches ограничивает число DELETE за один проход; остаток уйдёт в следующий.
func WithMaxBatches(n int) CleanupOption {
	return func(s *settings) { s.maxBatches = n }
}

// CleanupWorker раз в interval удаляет истёкшие записи идемпотентности.
type CleanupWorker struct {
	repo ExpiredDeleter
	cfg  settings
	now  func() time.Time
}

func NewCleanupWorker(repo ExpiredDeleter, options ...CleanupOption) *CleanupWorker {
	cfg := settings{interval: defaultInterval, batchSize: defaultBatchSize, maxBatches: defaultMaxBatches}
	for _, option := range options {
		option(&cfg)
	}
	if cfg.interval <= 0 {
		cfg.interval = defaultInterval
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}
	if cfg.maxBatches <= 0 {
		cfg.maxBatches = defaultMaxBatches
	}
	if cfg.logger == nil {
		cfg.logger = log.WithField("component", "idempotency-cleanup")
	}

	return &CleanupWorker{repo: repo, cfg: cfg, now: func() time.Time { return time.Now().UTC() }}
}

// Run делает первый проход сразу, затем по таймеру до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.cfg.logger.Warn("idempotency cleanup disabled: no repository")
		return
	}

	ticker := time.NewTicker(w.cfg.interval)
	defer ticker.Stop()
	for {
		w.sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *CleanupWorker) sweep(ctx context.Context) {
	deleted, err := w.DeleteExpired(ctx, w.now())
	if errors.Is(err, context.Canceled) {
		return
	}
	w.cfg.metrics.RecordCleanup(deleted, err)

	entry := w.cfg.logger.WithField("deleted", deleted)
	switch {
	case err != nil:
		entry.WithError(err).Warn("idempotency cleanup failed")
	case deleted > 0:
		entry.Info("idempotency keys expired")
	}
}

// DeleteExpired удаляет записи с ttl_at <= before пачками по batchSize. Проход
// заканчивается на неполной пачке или после maxBatches пачек.
func (w *CleanupWorker) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	if before.IsZero() {
		before = w.now()
	}

	total := 0
	for batch := 0; batch < w.cfg.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := w.repo.DeleteExpired(ctx, before, w.cfg.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.cfg.batchSize {
			break
		}
	}
	return total, nil
}
