package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты публикации outbox-сообщения.
const (
	PublishSent       = "sent"
	PublishRetryError = "retry_error"
	PublishFailed     = "failed"
	PublishDLQFailed  = "dlq_failed"
)

// WorkerMetrics описывает фоновые воркеры: backlog outbox и очистку ключей идемпотентности.
type WorkerMetrics struct {
	attempts         *prometheus.CounterVec
	pending          prometheus.Gauge
	oldestPendingAge prometheus.Gauge
	cleanupRuns      *prometheus.CounterVec
	cleanupDeleted   prometheus.Counter
}

// NewWorkerMetricsWithRegisterer регистрирует метрики воркеров.
func NewWorkerMetricsWithRegisterer(registerer prometheus.Registerer) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &WorkerMetrics{
		attempts: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_publish_attempts_total",
			Help: "Total number of outbox publish attempts grouped by result.",
		}, []string{"result"}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_pending_records",
			Help: "Current number of pending records in transactional outbox.",
		}),
		oldestPendingAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_outbox_oldest_pending_age_seconds",
			Help: "Age in seconds of the oldest pending outbox record.",
		}),
		cleanupRuns: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_cleanup_runs_total",
			Help: "Total number of idempotency cleanup runs grouped by result.",
		}, []string{"result"}),
		cleanupDeleted: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_idempotency_keys_deleted_total",
			Help: "Total number of expired idempotency keys removed by the cleanup worker.",
		}),
	}
}

func (m *WorkerMetrics) RecordPublish(result string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(result).Inc()
}

// SetBacklog обновляет размер backlog. Нулевой oldest означает пустую очередь.
func (m *WorkerMetrics) SetBacklog(pending int, oldest time.Time, now time.Time) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	if pending == 0 || oldest.IsZero() {
		m.oldestPendingAge.Set(0)
		return
	}
	age := now.Sub(oldest).Seconds()
	if age < 0 {
		age = 0
	}
	m.oldestPendingAge.Set(age)
}

// RecordCleanup учитывает один прогон очистки. Ошибочный прогон не меняет счётчик удалённых.
func (m *WorkerMetrics) RecordCleanup(deleted int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.cleanupRuns.WithLabelValues("error").Inc()
	} else {
		m.cleanupRuns.WithLabelValues("ok").Inc()
	}
	if deleted > 0 {
		m.cleanupDeleted.Add(float64(deleted))
	}
}
