// Package outbox доставляет события жизненного цикла заказа из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/metrics"
)

const (
	defaultPollInterval   = 1 * time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

// WorkerOptions задаёт параметры outbox worker.
type WorkerOptions struct {
	Logger         *log.Entry
	Metrics        *metrics.WorkerMetrics
	DLQPublisher   domain.OutboxPublisher
	PollInterval   time.Duration
	BatchSize      int
	MaxAttempts    int
	RetryBaseDelay time.Duration
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) { opts.Logger = logger }
}

func WithMetrics(m *metrics.WorkerMetrics) Option {
	return func(opts *WorkerOptions) { opts.Metrics = m }
}

// WithDLQPublisher задаёт publisher, в который уходят события после исчерпания попыток.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(opts *WorkerOptions) { opts.DLQPublisher = publisher }
}

func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) { opts.PollInterval = interval }
}

func WithBatchSize(batchSize int) Option {
	return func(opts *WorkerOptions) { opts.BatchSize = batchSize }
}

func WithMaxAttempts(maxAttempts int) Option {
	return func(opts *WorkerOptions) { opts.MaxAttempts = maxAttempts }
}

// WithRetryBaseDelay задаёт первую паузу exponential backoff. Ноль отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(opts *WorkerOptions) { opts.RetryBaseDelay = delay }
}

// BatchResult — итог одного цикла опроса.
type BatchResult struct {
	Sent   int
	Failed int
}

// Worker публикует pending-события заказов в брокер.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	metrics   *metrics.WorkerMetrics
	logger    *log.Entry
	opts      WorkerOptions
	now       func() time.Time
}

// NewWorker создаёт outbox worker.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval:   defaultPollInterval,
		BatchSize:      defaultBatchSize,
		MaxAttempts:    defaultMaxAttempts,
		RetryBaseDelay: defaultRetryBaseDelay,
	}
	for _, option := range options {
		option(&opts)
	}

	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryBaseDelay < 0 {
		opts.RetryBaseDelay = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "outbox-worker")
	}

	return &Worker{
		repo:      repo,
		publisher: publisher,
		dlq:       opts.DLQPublisher,
		metrics:   opts.Metrics,
		logger:    logger,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox worker is disabled: repo or publisher is nil")
		return
	}

	w.logger.WithFields(log.Fields{
		"poll_interval": w.opts.PollInterval.String(),
		"batch_size":    w.opts.BatchSize,
	}).Info("outbox worker started")

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.ProcessOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce публикует один батч. Событие, не опубликованное за MaxAttempts попыток,
// уходит в DLQ и помечается failed, чтобы не блокировать следующие.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}

	w.refreshBacklog(ctx)
	defer w.refreshBacklog(context.WithoutCancel(ctx))

	events, err := w.repo.PullPending(ctx, w.opts.BatchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return result
	}

	for _, event := range events {
		if ctx.Err() != nil {
			return result
		}
		fields := log.Fields{
			"outbox_id":  event.ID,
			"order_id":   event.AggregateID,
			"event_type": event.EventType,
		}

		if err := w.publishWithRetry(ctx, event); err != nil {
			if ctx.Err() != nil {
				return result
			}
			result.Failed++
			w.metrics.RecordPublish(metrics.PublishFailed)
			w.logger.WithError(err).WithFields(fields).Error("outbox publish failed after retries")

			if dlqErr := w.publishToDLQ(ctx, event, err); dlqErr != nil {
				w.metrics.RecordPublish(metrics.PublishDLQFailed)
				w.logger.WithError(dlqErr).WithFields(fields).Warn("failed to publish to DLQ")
			}
			if markErr := w.repo.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
				w.logger.WithError(markErr).WithFields(fields).Warn("failed to mark outbox as failed")
			}
			continue
		}

		result.Sent++
		if err := w.repo.MarkSent(ctx, event.ID); err != nil {
			w.logger.WithError(err).WithFields(fields).Warn("failed to mark outbox as sent")
		}
	}

	if result.Sent > 0 || result.Failed > 0 {
		w.logger.WithFields(log.Fields{
			"sent":   result.Sent,
			"failed": result.Failed,
		}).Debug("outbox batch processed")
	}
	return result
}

func (w *Worker) publishWithRetry(ctx context.Context, event domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.opts.MaxAttempts; attempt++ {
		err := w.publisher.Publish(ctx, event)
		if err == nil {
			w.metrics.RecordPublish(metrics.PublishSent)
			return nil
		}
		lastErr = err
		w.metrics.RecordPublish(metrics.PublishRetryError)

		if attempt == w.opts.MaxAttempts {
			break
		}
		delay := backoff(w.opts.RetryBaseDelay, attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: %d attempts: %v", domain.ErrOutboxPublish, w.opts.MaxAttempts, lastErr)
}

func (w *Worker) refreshBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	w.metrics.SetBacklog(stats.PendingCount, stats.OldestPendingAt, w.now())
}

// backoff удваивает base на каждой попытке и ограничивает паузу maxRetryDelay.
func backoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// dlqEnvelope — содержимое сообщения в DLQ: исходное событие и причина отказа.
type dlqEnvelope struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	OrderID       string          `json:"order_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	FailedAt      time.Time       `json:"failed_at"`
}

func (w *Worker) publishToDLQ(ctx context.Context, event domain.OutboxMessage, publishErr error) error {
	if w.dlq == nil {
		return nil
	}

	payload := json.RawMessage(event.Payload)
	if !json.Valid(payload) {
		raw, _ := json.Marshal(string(event.Payload))
		payload = raw
	}
	body, err := json.Marshal(dlqEnvelope{
		OutboxID:      event.ID,
		AggregateType: event.AggregateType,
		OrderID:       event.AggregateID,
		EventType:     event.EventType,
		Payload:       payload,
		PublishError:  publishErr.Error(),
		FailedAt:      w.now(),
	})
	if err != nil {
		return fmt.Errorf("marshal dlq payload: %w", err)
	}

	if err := w.dlq.Publish(ctx, domain.OutboxMessage{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       body,
	}); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}
