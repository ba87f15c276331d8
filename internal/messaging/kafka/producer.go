package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

var errProducerClosed = errors.New("kafka producer is not initialized")

// Message — запись для отправки в Kafka.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

func (m Message) toSarama(now time.Time) *sarama.ProducerMessage {
	out := &sarama.ProducerMessage{
		Topic:     m.Topic,
		Key:       sarama.StringEncoder(m.Key),
		Value:     sarama.ByteEncoder(m.Value),
		Timestamp: now,
	}
	names := make([]string, 0, len(m.Headers))
	for name := range m.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out.Headers = append(out.Headers, sarama.RecordHeader{Key: []byte(name), Value: []byte(m.Headers[name])})
	}
	return out
}

// ProducerOption меняет конфигурацию sarama перед созданием producer.
type ProducerOption func(*sarama.Config)

func WithClientID(id string) ProducerOption {
	return func(c *sarama.Config) {
		if id != "" {
			c.ClientID = id
		}
	}
}

// WithMaxRetries задаёт число повторов внутри sarama до возврата ошибки вызывающему.
func WithMaxRetries(n int) ProducerOption {
	return func(c *sarama.Config) {
		if n >= 0 {
			c.Producer.Retry.Max = n
		}
	}
}

func WithCompression(codec sarama.CompressionCodec) ProducerOption {
	return func(c *sarama.Config) { c.Producer.Compression = codec }
}

// producerConfig — идемпотентный producer с подтверждением от всех реплик.
func producerConfig(opts ...ProducerOption) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = "storefront"
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Idempotent = true
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = sarama.CompressionSnappy
	// Идемпотентность sarama требует не больше одного запроса в полёте.
	cfg.Net.MaxOpenRequests = 1
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Producer синхронно пишет сообщения в Kafka.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
	now    func() time.Time
}

func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(brokers, producerConfig(opts...))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return wrapProducer(sp, log.WithField("component", "kafka-producer")), nil
}

func wrapProducer(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	return &Producer{sync: sp, logger: logger, now: time.Now}
}

// Send отправляет сообщение. sarama не принимает ctx, поэтому отменённый ctx
// проверяется только до отправки.
func (p *Producer) Send(ctx context.Context, msg Message) error {
	if p == nil || p.sync == nil {
		return errProducerClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	partition, offset, err := p.sync.SendMessage(msg.toSarama(p.now()))
	fields := log.Fields{"topic": msg.Topic, "key": msg.Key}
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	fields["partition"] = partition
	fields["offset"] = offset
	p.logger.WithFields(fields).Debug("kafka message sent")
	return nil
}

// SendJSON кодирует value в JSON и отправляет его.
func (p *Producer) SendJSON(ctx context.Context, topic, key string, value any, headers map[string]string) error {
	body, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", topic, err)
	}
	return p.Send(ctx, Message{Topic: topic, Key: key, Value: body, Headers: headers})
}

func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
