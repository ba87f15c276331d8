// Package metrics содержит Prometheus-метрики сервиса.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты проверки callback-а.
const (
	VerificationSucceeded = "succeeded"
	VerificationFailed    = "failed"
	VerificationRejected  = "rejected"
)

// LifecycleMetrics содержит метрики жизненного цикла заказа.
// Методы безопасно вызывать на nil-получателе.
type LifecycleMetrics struct {
	ordersCreated prometheus.Counter
	transitions   *prometheus.CounterVec
	initiations   *prometheus.CounterVec
	verifications *prometheus.CounterVec

	operationDuration *prometheus.HistogramVec

	timelineEvents prometheus.Counter
	outboxEvents   prometheus.Counter

	inFlight prometheus.Gauge
}

// NewLifecycleMetrics регистрирует метрики в DefaultRegisterer.
func NewLifecycleMetrics() *LifecycleMetrics {
	return NewLifecycleMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewLifecycleMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewLifecycleMetricsWithRegisterer(registerer prometheus.Registerer) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &LifecycleMetrics{
		ordersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_orders_created_total",
			Help: "Total number of orders created",
		}),
		transitions: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_order_transitions_total",
			Help: "Total number of committed order status transitions",
		}, []string{"from", "to"}),
		initiations: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_initiations_total",
			Help: "Total number of payment initiations by provider and result",
		}, []string{"provider", "result"}),
		verifications: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_payment_verifications_total",
			Help: "Total number of payment callback verifications by provider and result",
		}, []string{"provider", "result"}),
		operationDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "storefront_lifecycle_operation_duration_seconds",
			Help:    "Duration of lifecycle operations in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"operation"}),
		timelineEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_timeline_events_total",
			Help: "Total number of timeline events recorded",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
		inFlight: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_lifecycle_operations_in_flight",
			Help: "Number of lifecycle operations currently executing",
		}),
	}
}

// RecordOrderCreated увеличивает счётчик созданных заказов.
func (m *LifecycleMetrics) RecordOrderCreated() {
	if m == nil {
		return
	}
	m.ordersCreated.Inc()
}

// RecordTransition учитывает зафиксированный переход статуса.
func (m *LifecycleMetrics) RecordTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// RecordInitiation учитывает инициацию платежа: result = ok|reused|error.
func (m *LifecycleMetrics) RecordInitiation(provider, result string) {
	if m == nil {
		return
	}
	m.initiations.WithLabelValues(provider, result).Inc()
}

// RecordVerification учитывает результат проверки callback-а.
func (m *LifecycleMetrics) RecordVerification(provider, result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(provider, result).Inc()
}

// RecordTimelineEvent увеличивает счётчик событий timeline.
func (m *LifecycleMetrics) RecordTimelineEvent() {
	if m == nil {
		return
	}
	m.timelineEvents.Inc()
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *LifecycleMetrics) RecordOutboxEvent() {
	if m == nil {
		return
	}
	m.outboxEvents.Inc()
}

// StartOperation отмечает начало операции и возвращает функцию её завершения.
func (m *LifecycleMetrics) StartOperation(operation string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.inFlight.Inc()
	return func() {
		m.inFlight.Dec()
		m.operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
