package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/metrics"
)

const transportKafka = "kafka"

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	ClientID string
}

func (c KafkaConfig) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("kafka: no bootstrap servers")
	}
	if c.Topic == "" {
		return errors.New("kafka: topic required")
	}
	return nil
}

// KafkaProducer publishes events to one topic. Every record waits for all
// in-sync replicas and the client writes idempotently, so its own retries
// never duplicate a record.
type KafkaProducer struct {
	client  atomic.Pointer[kgo.Client]
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewKafkaProducer(cfg KafkaConfig, logger *slog.Logger, m *metrics.Metrics) (*KafkaProducer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID+"-producer"))
	}
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	p := &KafkaProducer{topic: cfg.Topic, logger: logger, metrics: m}
	p.client.Store(cl)
	return p, nil
}

// Publish produces each event in order and stops at the first failure, which
// is returned so the caller can retry.
func (p *KafkaProducer) Publish(ctx context.Context, events []logevent.Event) error {
	cl := p.client.Load()
	if cl == nil {
		return ErrClosed
	}
	p.logger.Debug("producing log events", "topic", p.topic, "count", len(events))

	for i, ev := range events {
		value, err := Wrap(ev)
		if err != nil {
			return err
		}
		rec := &kgo.Record{
			Key:     []byte(ev.Source()),
			Value:   value,
			Headers: []kgo.RecordHeader{{Key: "content-type", Value: []byte(envelopeContentType)}},
		}
		if err := cl.ProduceSync(ctx, rec).FirstErr(); err != nil {
			p.metrics.QueueError(transportKafka, "produce")
			p.logger.Error("kafka produce failed", "topic", p.topic, "index", i, "error", err)
			return fmt.Errorf("produce event %d: %w", i, err)
		}
	}
	return nil
}

func (p *KafkaProducer) Close() {
	if cl := p.client.Swap(nil); cl != nil {
		cl.Close()
	}
}

// KafkaConsumer reads the topic as a member of a consumer group, starting
// from the earliest offset when the group has no commit yet.
type KafkaConsumer struct {
	client  atomic.Pointer[kgo.Client]
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewKafkaConsumer(cfg KafkaConfig, logger *slog.Logger, m *metrics.Metrics) (*KafkaConsumer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka: consumer group required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.GroupID),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
		kgo.AutoCommitMarks(),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID+"-consumer"))
	}
	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	c := &KafkaConsumer{topic: cfg.Topic, logger: logger, metrics: m}
	c.client.Store(cl)
	return c, nil
}

// Run polls until ctx is cancelled or the consumer is closed. Fetch errors
// and undecodable records are logged and skipped. Records are marked for
// commit once handled, whether or not the handler succeeded.
func (c *KafkaConsumer) Run(ctx context.Context, handle Handler) error {
	cl := c.client.Load()
	if cl == nil {
		return ErrClosed
	}
	defer c.Close()
	c.logger.Info("consuming kafka topic", "topic", c.topic)

	for {
		fetches := cl.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			c.logger.Info("kafka consumption stopped", "topic", c.topic)
			return nil
		}

		fetches.EachError(func(topic string, partition int32, err error) {
			c.metrics.QueueError(transportKafka, "consume")
			c.logger.Error("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})

		fetches.EachRecord(func(rec *kgo.Record) {
			defer cl.MarkCommitRecords(rec)

			ev, err := Unwrap(rec.Value)
			if err != nil {
				c.metrics.QueueError(transportKafka, "unwrap")
				c.logger.Error("skipping undecodable record",
					"topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset, "error", err)
				return
			}
			if err := handle(ctx, ev); err != nil {
				c.logger.Error("log event handler failed", "offset", rec.Offset, "error", err)
			}
		})
	}
}

// Close commits marked offsets and closes the client. Only the first call,
// from Run or elsewhere, does anything.
func (c *KafkaConsumer) Close() {
	cl := c.client.Swap(nil)
	if cl == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := cl.CommitMarkedOffsets(ctx); err != nil {
		c.logger.Warn("commit marked offsets", "error", err)
	}
	cl.Close()
}

// EnsureTopic creates topic with the given layout. An existing topic is not
// an error.
func EnsureTopic(ctx context.Context, brokers []string, topic string, partitions int32, replication int16) error {
	cl, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return fmt.Errorf("kafka admin: %w", err)
	}
	defer cl.Close()

	resp, err := kadm.NewClient(cl).CreateTopic(ctx, partitions, replication, nil, topic)
	if err == nil {
		err = resp.Err
	}
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}
