package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

func newMockProducer(t *testing.T) (*Producer, *mocks.SyncProducer) {
	t.Helper()
	mockProducer := mocks.NewSyncProducer(t, nil)
	return wrapProducer(mockProducer, log.WithField("component", "kafka-producer-test")), mockProducer
}

func TestProducer_SendJSON(t *testing.T) {
	producer, mockProducer := newMockProducer(t)
	sentAt := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	producer.now = func() time.Time { return sentAt }

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		require.Equal(t, TopicOrderEvents, msg.Topic)
		require.Equal(t, sentAt, msg.Timestamp)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		require.Equal(t, "order-123", string(key))
		value, err := msg.Value.Encode()
		require.NoError(t, err)
		require.JSONEq(t, `{"order_id":"order-123"}`, string(value))
		return nil
	})

	err := producer.SendJSON(context.Background(), TopicOrderEvents, "order-123",
		map[string]string{"order_id": "order-123"},
		map[string]string{HeaderEventType: domain.EventOrderCreated})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_HeadersAreSorted(t *testing.T) {
	producer, mockProducer := newMockProducer(t)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		keys := make([]string, 0, len(msg.Headers))
		for _, h := range msg.Headers {
			keys = append(keys, string(h.Key))
		}
		require.Equal(t, []string{HeaderEventType, HeaderOutboxID, HeaderRetryCount}, keys)
		return nil
	})

	err := producer.Send(context.Background(), Message{
		Topic: TopicOrderEvents,
		Key:   "k",
		Headers: map[string]string{
			HeaderRetryCount: "1",
			HeaderOutboxID:   "outbox-1",
			HeaderEventType:  domain.EventOrderPaid,
		},
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_SendError(t *testing.T) {
	producer, mockProducer := newMockProducer(t)
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.SendJSON(context.Background(), TopicOrderEvents, "k", map[string]string{}, nil)
	if !errors.Is(err, sarama.ErrOutOfBrokers) {
		t.Fatalf("expected ErrOutOfBrokers, got %v", err)
	}
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_SendJSON_MarshalError(t *testing.T) {
	producer, mockProducer := newMockProducer(t)

	err := producer.SendJSON(context.Background(), TopicOrderEvents, "k", map[string]any{"ch": make(chan int)}, nil)
	require.ErrorContains(t, err, "encode "+TopicOrderEvents)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_Send_CanceledContext(t *testing.T) {
	producer, mockProducer := newMockProducer(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, producer.Send(ctx, Message{Topic: TopicOrderEvents, Key: "k", Value: []byte("{}")}), context.Canceled)
	require.NoError(t, mockProducer.Close())
}

func TestProducer_Uninitialized(t *testing.T) {
	var producer *Producer
	require.ErrorIs(t, producer.Send(context.Background(), Message{Topic: TopicOrderEvents}), errProducerClosed)
	require.NoError(t, producer.Close())
}

func TestProducerConfig(t *testing.T) {
	cfg := producerConfig()
	require.Equal(t, "storefront", cfg.ClientID)
	require.True(t, cfg.Producer.Idempotent)
	require.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	require.Equal(t, 1, cfg.Net.MaxOpenRequests)

	cfg = producerConfig(WithClientID("storefront-eu"), WithMaxRetries(2), WithCompression(sarama.CompressionNone), WithClientID(""))
	require.Equal(t, "storefront-eu", cfg.ClientID)
	require.Equal(t, 2, cfg.Producer.Retry.Max)
	require.Equal(t, sarama.CompressionNone, cfg.Producer.Compression)
	require.NoError(t, cfg.Validate())
}

func TestParseOrderEvent(t *testing.T) {
	msg := &sarama.ConsumerMessage{Value: []byte(`{"id":"e-1","order_id":"o-1","event_type":"OrderPaid","payload":{"status":"PAID"}}`)}
	event, err := ParseOrderEvent(msg)
	require.NoError(t, err)
	require.Equal(t, "o-1", event.OrderID)
	require.Equal(t, domain.EventOrderPaid, event.EventType)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(event.Payload, &payload))
	require.Equal(t, "PAID", payload["status"])

	_, err = ParseOrderEvent(&sarama.ConsumerMessage{Value: []byte("{")})
	require.Error(t, err)
}
