// Package app holds the wiring shared by the api and sentinel binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/LukasLeindals/ergonaut/internal/config"
	"github.com/LukasLeindals/ergonaut/internal/dedup"
	"github.com/LukasLeindals/ergonaut/internal/metrics"
	"github.com/LukasLeindals/ergonaut/internal/queue"
	"github.com/LukasLeindals/ergonaut/internal/sentinel"
	"github.com/LukasLeindals/ergonaut/internal/store"
	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

// OpenTracker connects to Postgres and applies the schema when a database
// URL is configured, and falls back to the in-memory tracker otherwise. The
// returned func releases the tracker.
func OpenTracker(ctx context.Context, cfg config.Config, logger *slog.Logger) (tracker.Tracker, func(), error) {
	if cfg.DBURL == "" {
		logger.Warn("DB_URL not set, work items are kept in memory")
		return tracker.NewMemory(), func() {}, nil
	}

	db, err := store.NewPostgresStore(ctx, cfg.DBURL)
	if err != nil {
		return nil, nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, db.Close, nil
}

// NewWorker builds the dedup cache and the Sentinel worker on top of tr.
// The caller owns the cache's janitor (Start/Stop).
func NewWorker(cfg config.Config, tr tracker.Tracker, logger *slog.Logger, m *metrics.Metrics) (*sentinel.Worker, *dedup.Cache, error) {
	sc, err := cfg.SentinelConfig()
	if err != nil {
		return nil, nil, err
	}
	cache := dedup.New(
		dedup.WithWindow(cfg.Dedup.Window),
		dedup.WithCapacity(cfg.Dedup.Capacity),
	)
	w := sentinel.NewWorker(
		cache,
		sentinel.NewFilter(sc, tr.Projects(), tr.WorkItems()),
		sentinel.NewCreator(sc, tr.Projects(), tr.WorkItems(), logger),
		logger,
		m,
	)
	return w, cache, nil
}

func KafkaConfig(cfg config.Config) queue.KafkaConfig {
	return queue.KafkaConfig{
		Brokers:  cfg.Kafka.BootstrapServers,
		Topic:    cfg.Kafka.Topic,
		GroupID:  cfg.Kafka.GroupID,
		ClientID: cfg.Kafka.ClientID,
	}
}

func AMQPConfig(cfg config.Config) queue.AMQPConfig {
	return queue.AMQPConfig{
		URL:      cfg.AMQP.URL,
		Exchange: cfg.AMQP.Exchange,
		Queue:    cfg.AMQP.Queue,
	}
}

// EnsureKafkaTopic creates the configured topic if it is missing.
func EnsureKafkaTopic(ctx context.Context, cfg config.Config) error {
	return queue.EnsureTopic(ctx, cfg.Kafka.BootstrapServers, cfg.Kafka.Topic,
		cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor)
}
