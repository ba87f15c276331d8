package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestNewLifecycleMetricsRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewLifecycleMetricsWithRegisterer(reg)
	second := NewLifecycleMetricsWithRegisterer(reg)

	first.RecordOrderCreated()
	second.RecordOrderCreated()

	if got := testutil.ToFloat64(first.ordersCreated); got != 2 {
		t.Fatalf("expected shared counter value 2, got %f", got)
	}
}

func TestRecordTransition(t *testing.T) {
	m := NewLifecycleMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordTransition("AWAITING_PAYMENT", "PAID")
	m.RecordTransition("AWAITING_PAYMENT", "PAID")
	m.RecordTransition("CREATED", "CANCELLED")

	if got := testutil.ToFloat64(m.transitions.WithLabelValues("AWAITING_PAYMENT", "PAID")); got != 2 {
		t.Errorf("expected 2 paid transitions, got %f", got)
	}
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("CREATED", "CANCELLED")); got != 1 {
		t.Errorf("expected 1 cancel transition, got %f", got)
	}
}

func TestRecordVerificationAndInitiation(t *testing.T) {
	m := NewLifecycleMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordVerification("card", VerificationSucceeded)
	m.RecordVerification("card", VerificationRejected)
	m.RecordInitiation("realtime_push", "ok")

	if got := testutil.ToFloat64(m.verifications.WithLabelValues("card", VerificationRejected)); got != 1 {
		t.Errorf("expected 1 rejected verification, got %f", got)
	}
	if got := testutil.ToFloat64(m.initiations.WithLabelValues("realtime_push", "ok")); got != 1 {
		t.Errorf("expected 1 initiation, got %f", got)
	}
}

func TestStartOperation(t *testing.T) {
	m := NewLifecycleMetricsWithRegisterer(prometheus.NewRegistry())

	done := m.StartOperation("finalize")
	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("expected 1 in-flight operation, got %f", got)
	}
	done()
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("expected 0 in-flight operations, got %f", got)
	}

	metric := &dto.Metric{}
	observer := m.operationDuration.WithLabelValues("finalize")
	if err := observer.(prometheus.Histogram).Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Histogram.GetSampleCount() != 1 {
		t.Errorf("expected 1 sample, got %d", metric.Histogram.GetSampleCount())
	}
}

func TestNilLifecycleMetricsIsNoop(t *testing.T) {
	var m *LifecycleMetrics
	m.RecordOrderCreated()
	m.RecordTransition("a", "b")
	m.RecordInitiation("card", "ok")
	m.RecordVerification("card", VerificationFailed)
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()
	m.StartOperation("noop")()
}

func TestTimelineAndOutboxCounters(t *testing.T) {
	m := NewLifecycleMetricsWithRegisterer(prometheus.NewRegistry())
	m.RecordTimelineEvent()
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()

	if got := testutil.ToFloat64(m.timelineEvents); got != 2 {
		t.Errorf("expected 2 timeline events, got %f", got)
	}
	if got := testutil.ToFloat64(m.outboxEvents); got != 1 {
		t.Errorf("expected 1 outbox event, got %f", got)
	}
}

func TestHTTPMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegisterer(reg)

	m.Observe("POST", "/api/orders", 201, 0)
	m.Observe("POST", "/api/orders", 201, 0)
	m.Observe("GET", "", 404, 0)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("POST", "/api/orders", "201")); got != 2 {
		t.Fatalf("expected 2 requests, got %f", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched route label, got %f", got)
	}

	var nilMetrics *HTTPMetrics
	nilMetrics.Observe("GET", "/", 200, 0)
}
