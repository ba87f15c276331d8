package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 200 * time.Millisecond
)

// MessageHandler обрабатывает сообщение из Kafka
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// permanentError помечает ошибку, которую бессмысленно повторять.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent оборачивает ошибку обработчика: сообщение сразу уходит в DLQ без повторов.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent сообщает, помечена ли ошибка как неповторяемая.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// ConsumerConfig задаёт параметры consumer group.
type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topics      []string
	MaxAttempts int
	RetryDelay  time.Duration
	// DLQTopic — куда уходят сообщения после исчерпания попыток.
	DLQTopic string
}

// Consumer читает topic-и consumer group и отправляет необработанные сообщения в DLQ.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	wg          sync.WaitGroup
	dlqProducer *Producer
	dlqTopic    string
	maxAttempts int
	retryDelay  time.Duration
}

// NewConsumer создает consumer group. dlqProducer может быть nil: тогда сообщение
// после всех попыток не помечается и будет перечитано после перезапуска.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, dlqProducer *Producer, logger *log.Entry) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, cfg, handler, dlqProducer, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler, dlqProducer *Producer, logger *log.Entry) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.DLQTopic == "" {
		cfg.DLQTopic = TopicDeadLetterQueue
	}
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}
	return &Consumer{
		consumer:    group,
		topics:      cfg.Topics,
		handler:     handler,
		logger:      logger,
		dlqProducer: dlqProducer,
		dlqTopic:    cfg.DLQTopic,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
	}
}

// Start запускает чтение в фоне до отмены ctx или Stop.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop останавливает consumer
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения партиции. Сообщение помечается, если обработано
// или отправлено в DLQ.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			fields := log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}
			c.logger.WithFields(fields).Debug("received message")

			if err := c.handleMessage(session.Context(), message); err != nil {
				c.logger.WithError(err).WithFields(fields).Error("message processing failed after all retries")
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessage вызывает обработчик до maxAttempts раз. Permanent-ошибки не повторяются.
func (c *Consumer) handleMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	var err error
	attempts := 0
	for attempts < c.maxAttempts {
		attempts++
		err = c.handler(ctx, message)
		if err == nil {
			return nil
		}
		if IsPermanent(err) || attempts == c.maxAttempts {
			break
		}

		c.logger.WithError(err).WithFields(log.Fields{
			"topic":        message.Topic,
			"attempt":      attempts,
			"max_attempts": c.maxAttempts,
		}).Warn("message processing failed, will retry")

		if c.retryDelay > 0 {
			timer := time.NewTimer(c.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}

	if c.dlqProducer == nil {
		return err
	}
	if dlqErr := c.sendToDLQ(ctx, message, err, attempts); dlqErr != nil {
		c.logger.WithError(dlqErr).Error("failed to send message to DLQ")
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":     message.Topic,
		"attempts":  attempts,
		"permanent": IsPermanent(err),
	}).Info("message sent to DLQ")
	return nil
}

// retryCount возвращает число предыдущих прогонов, записанное в заголовок.
func retryCount(message *sarama.ConsumerMessage) int {
	count, err := strconv.Atoi(header(message, HeaderRetryCount))
	if err != nil || count < 0 {
		return 0
	}
	return count
}

// sendToDLQ пересылает исходное сообщение как есть, а причину отказа кладёт в заголовки.
func (c *Consumer) sendToDLQ(ctx context.Context, message *sarama.ConsumerMessage, processingErr error, attempts int) error {
	return c.dlqProducer.Send(ctx, Message{
		Topic: c.dlqTopic,
		Key:   string(message.Key),
		Value: message.Value,
		Headers: map[string]string{
			HeaderOriginalTopic: message.Topic,
			HeaderErrorMessage:  processingErr.Error(),
			HeaderFailedAt:      time.Now().UTC().Format(time.RFC3339),
			HeaderRetryCount:    strconv.Itoa(retryCount(message) + attempts),
		},
	})
}
