// Команда dlq-reprocess переотправляет сообщения из DLQ: callback-и в их исходный topic,
// события outbox в topic событий заказов. По умолчанию только показывает кандидатов.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

const (
	clientID           = "storefront-dlq-reprocess"
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
	envKafkaBrokers    = "STOREFRONT_KAFKA_BROKERS"
)

type config struct {
	brokers     []string
	sourceTopic string
	eventsTopic string
	orderID     string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func (c config) mode() string {
	if c.execute {
		return "execute"
	}
	return "dry-run"
}

type saramaSource struct {
	consumer sarama.Consumer
}

func (s saramaSource) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

func (s saramaSource) Close() error {
	if s.consumer == nil {
		return nil
	}
	return s.consumer.Close()
}

// connect открывает клиент и consumer; producer нужен только в режиме execute.
var connect = func(cfg config) (offsetClient, partitionSource, replaySink, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.ClientID = clientID
	saramaCfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := saramaSource{consumer: consumer}
	if !cfg.execute {
		return client, source, nil, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, kafka.WithClientID(clientID))
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, err
	}
	return client, source, producer, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := readConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		fail("%v", err)
	}
	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, lookup func(string) (string, bool)) (config, error) {
	cfg := config{}
	var brokers string

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokers, "brokers", "", "comma-separated Kafka brokers (fallback: "+envKafkaBrokers+")")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to read")
	fs.StringVar(&cfg.eventsTopic, "events-topic", kafka.TopicOrderEvents, "topic for restored outbox events")
	fs.StringVar(&cfg.orderID, "order-id", "", "replay only this order")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "send messages instead of listing them")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the latest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "give up on a partition after this much silence")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokers) == "" && lookup != nil {
		brokers, _ = lookup(envKafkaBrokers)
	}
	cfg.brokers = splitList(brokers)
	cfg.orderID = strings.TrimSpace(cfg.orderID)
	return cfg, cfg.validate()
}

func (c config) validate() error {
	switch {
	case len(c.brokers) == 0:
		return fmt.Errorf("kafka brokers are required (-brokers or %s)", envKafkaBrokers)
	case strings.TrimSpace(c.sourceTopic) == "":
		return errors.New("source-topic is required")
	case strings.TrimSpace(c.eventsTopic) == "":
		return errors.New("events-topic is required")
	case c.limit <= 0:
		return errors.New("limit must be > 0")
	case c.idleTimeout <= 0:
		return errors.New("idle-timeout must be > 0")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithFields(log.Fields{"source_topic": cfg.sourceTopic, "mode": cfg.mode()})
	logger.WithFields(log.Fields{"order_id": cfg.orderID, "limit": cfg.limit}).Info("starting dlq replay")

	client, source, sink, err := connect(cfg)
	if err != nil {
		return err
	}
	defer closeAll(sink, source, client)

	r, err := newReplayer(cfg, client, source, sink)
	if err != nil {
		return err
	}
	stats, err := r.Run(ctx)
	logger.WithFields(log.Fields{
		"processed": stats.processed,
		"replayed":  stats.replayed,
		"skipped":   stats.skipped,
	}).Info("dlq replay finished")
	return err
}

func closeAll(closers ...io.Closer) {
	for _, c := range closers {
		if c != nil {
			_ = c.Close()
		}
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
