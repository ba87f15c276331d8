package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	testDLQ    = "storefront.dlq"
	testEvents = "storefront.order.events"
)

var replayedAt = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

func callbackDLQMessage(partition int32, offset int64, orderID string) *sarama.ConsumerMessage {
	value, _ := json.Marshal(kafka.CallbackMessage{Provider: "card", OrderID: orderID, Signature: "sig"})
	return &sarama.ConsumerMessage{
		Partition: partition,
		Offset:    offset,
		Key:       []byte(orderID),
		Value:     value,
		Headers: []*sarama.RecordHeader{
			{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte(kafka.TopicPaymentCallbacks)},
			{Key: []byte(kafka.HeaderErrorMessage), Value: []byte("storage unavailable")},
			{Key: []byte(kafka.HeaderRetryCount), Value: []byte("3")},
		},
	}
}

func outboxDLQValue(t *testing.T, withPayload bool) []byte {
	t.Helper()

	failure := outboxFailure{
		OutboxID:      "outbox-1",
		AggregateType: "order",
		OrderID:       "order-1",
		EventType:     "order.paid",
		PublishError:  "broker timeout",
	}
	if withPayload {
		failure.Payload = json.RawMessage(`{"status":"PAID"}`)
	}
	inner, err := json.Marshal(failure)
	require.NoError(t, err)

	raw, err := json.Marshal(kafka.OrderEvent{ID: "dlq-1", OrderID: "order-1", Payload: inner})
	require.NoError(t, err)
	return raw
}

func TestDecodeCandidate_ForwardedCallback(t *testing.T) {
	got, ok, err := decodeCandidate(callbackDLQMessage(0, 0, "order-7"), testEvents, replayedAt)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "order-7", got.orderID)
	require.Equal(t, kafka.TopicPaymentCallbacks, got.out.Topic, "callbacks go back to their original topic")
	require.Equal(t, "order-7", got.out.Key)
	require.Equal(t, map[string]string{kafka.HeaderRetryCount: "3"}, got.out.Headers)

	var callback kafka.CallbackMessage
	require.NoError(t, json.Unmarshal(got.out.Value, &callback))
	require.Equal(t, "sig", callback.Signature)
}

func TestDecodeCandidate_OutboxFailure(t *testing.T) {
	got, ok, err := decodeCandidate(&sarama.ConsumerMessage{Value: outboxDLQValue(t, true)}, testEvents, replayedAt)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, testEvents, got.out.Topic)
	require.Equal(t, "order-1", got.out.Key)
	require.Equal(t, "order.paid", got.out.Headers[kafka.HeaderEventType])
	require.Equal(t, "outbox-1", got.out.Headers[kafka.HeaderOutboxID])

	var event kafka.OrderEvent
	require.NoError(t, json.Unmarshal(got.out.Value, &event))
	require.Equal(t, "outbox-1", event.ID)
	require.Equal(t, "order", event.AggregateType)
	require.Equal(t, replayedAt, event.PublishedAt)
	require.JSONEq(t, `{"status":"PAID"}`, string(event.Payload), "the original event payload is restored")
}

func TestDecodeCandidate_OutboxFailureWithoutPayload(t *testing.T) {
	_, ok, err := decodeCandidate(&sarama.ConsumerMessage{Value: outboxDLQValue(t, false)}, testEvents, replayedAt)
	require.ErrorIs(t, err, errNoOriginalPayload)
	require.False(t, ok)
}

func TestDecodeCandidate_OutboxFailurePayloadMissingOrNull(t *testing.T) {
	for _, inner := range []string{
		`{"outbox_id":"outbox-1","order_id":"order-1","event_type":"order.paid","payload":null}`,
		`{"outbox_id":"outbox-1","order_id":"order-1","event_type":"order.paid"}`,
	} {
		raw, err := json.Marshal(kafka.OrderEvent{ID: "dlq-1", OrderID: "order-1", Payload: json.RawMessage(inner)})
		require.NoError(t, err)

		_, ok, err := decodeCandidate(&sarama.ConsumerMessage{Value: raw}, testEvents, replayedAt)
		require.ErrorIs(t, err, errNoOriginalPayload, inner)
		require.False(t, ok, inner)
	}
}

func TestDecodeCandidate_Unrecognised(t *testing.T) {
	for _, value := range []string{`{"foo":"bar"}`, `not json`, `{"id":"x","payload":null}`} {
		_, ok, err := decodeCandidate(&sarama.ConsumerMessage{Value: []byte(value)}, testEvents, replayedAt)
		require.NoError(t, err, value)
		require.False(t, ok, value)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "x", "y"); got != "x" {
		t.Fatalf("unexpected first non-empty value: %q", got)
	}
	if got := firstNonEmpty("", " "); got != "" {
		t.Fatalf("expected empty result, got %q", got)
	}
}
