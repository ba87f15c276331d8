package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront/internal/service/outbox"
)

// initKafkaProducer инициализирует Kafka producer если brokers не пустой.
// Возвращает nil, nil если brokers пустой.
func initKafkaProducer(cfg Config, logger *log.Entry) (*kafka.Producer, error) {
	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, kafka.WithClientID(cfg.KafkaClientID))
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return nil, err
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers выбирает, куда outbox worker отправляет события и DLQ.
// Без producer события только пишутся в лог.
func outboxPublishers(cfg Config, producer *kafka.Producer, logger *log.Entry) (domain.OutboxPublisher, domain.OutboxPublisher) {
	if producer == nil {
		return outbox.NewLogPublisher(logger.WithField("component", "outbox-log-publisher")), nil
	}
	return kafka.NewOutboxPublisher(producer, cfg.KafkaOrderTopic),
		kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue)
}

// startCallbackConsumer запускает чтение callback-ов провайдеров из Kafka, если это включено.
func startCallbackConsumer(ctx context.Context, cfg Config, finalizer kafka.Finalizer, dlq *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	if !cfg.KafkaConsumeCallbacks || len(cfg.Brokers()) == 0 {
		return nil, nil
	}

	consumerLogger := logger.WithField("component", "payment-callback-consumer")
	consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:  cfg.Brokers(),
		GroupID:  cfg.KafkaConsumerGroup,
		Topics:   []string{cfg.KafkaCallbackTopic},
		DLQTopic: kafka.TopicDeadLetterQueue,
	}, kafka.NewCallbackHandler(finalizer, consumerLogger), dlq, consumerLogger)
	if err != nil {
		return nil, err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return nil, err
	}
	return consumer, nil
}

// closeKafka закрывает Kafka producer если он не nil.
func closeKafka(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}

	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

// stopConsumer останавливает consumer если он не nil.
func stopConsumer(consumer *kafka.Consumer, logger *log.Entry) {
	if consumer == nil {
		return
	}
	if err := consumer.Stop(); err != nil {
		logger.WithError(err).Warn("failed to stop kafka consumer")
	}
}
