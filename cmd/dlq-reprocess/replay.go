package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// replaySink — куда уходят восстановленные сообщения. *kafka.Producer подходит.
type replaySink interface {
	Send(ctx context.Context, msg kafka.Message) error
	Close() error
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

// replayer читает DLQ партиция за партицией. Без sink работает в режиме dry-run.
type replayer struct {
	cfg     config
	offsets offsetClient
	source  partitionSource
	sink    replaySink
	logger  *log.Entry
	now     func() time.Time
}

func newReplayer(cfg config, offsets offsetClient, source partitionSource, sink replaySink) (*replayer, error) {
	if offsets == nil || source == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && sink == nil {
		return nil, errors.New("producer is required in execute mode")
	}
	return &replayer{
		cfg:     cfg,
		offsets: offsets,
		source:  source,
		sink:    sink,
		logger:  log.WithField("component", "dlq-reprocess"),
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	var total replayStats

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	slices.Sort(partitions)

	for _, partition := range partitions {
		budget := r.cfg.limit - total.processed
		if budget <= 0 {
			break
		}
		stats, err := r.partition(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// startOffset выбирает начало чтения: oldest или последние budget сообщений.
func startOffset(oldest, newest int64, budget int, fromNewest bool) int64 {
	if fromNewest && newest-int64(budget) > oldest {
		return newest - int64(budget)
	}
	return oldest
}

// partition читает до конца, зафиксированного при старте, чтобы не зациклиться
// на собственных повторах в том же topic.
func (r *replayer) partition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	end, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if end <= oldest {
		return stats, nil
	}

	pc, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, startOffset(oldest, end, budget, r.cfg.fromNewest))
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case <-idle.C:
			return stats, nil
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.processed++
			if err := r.handle(ctx, msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func (r *replayer) handle(ctx context.Context, msg *sarama.ConsumerMessage, stats *replayStats) error {
	entry := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	c, ok, err := decodeCandidate(msg, r.cfg.eventsTopic, r.now())
	switch {
	case err != nil:
		stats.skipped++
		entry.WithError(err).Warn("skip unsupported dlq message")
		return nil
	case !ok, r.cfg.orderID != "" && c.orderID != r.cfg.orderID:
		stats.skipped++
		return nil
	}

	entry = entry.WithFields(log.Fields{"target_topic": c.out.Topic, "order_id": c.orderID})
	if !r.cfg.execute {
		entry.Info("dlq replay candidate")
		stats.replayed++
		return nil
	}
	if err := r.sink.Send(ctx, c.out); err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	entry.Info("dlq message replayed")
	stats.replayed++
	return nil
}
