package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/metrics"
)

const transportAMQP = "amqp"

type AMQPConfig struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

// routingKey is "logs.<level>", so bindings can select by severity.
func routingKey(e logevent.Event) string {
	return "logs." + strings.ToLower(e.Level().String())
}

// amqpConn owns a connection and one channel and closes both exactly once.
type amqpConn struct {
	conn atomic.Pointer[amqp.Connection]
	ch   *amqp.Channel
}

func dialAMQP(cfg AMQPConfig) (*amqpConn, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp: url required")
	}
	if cfg.Exchange == "" {
		return nil, errors.New("amqp: exchange required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("exchange declare: %w", err)
	}
	c := &amqpConn{ch: ch}
	c.conn.Store(conn)
	return c, nil
}

func (c *amqpConn) close(logger *slog.Logger) {
	conn := c.conn.Swap(nil)
	if conn == nil {
		return
	}
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		logger.Warn("amqp close", "error", err)
	}
}

func (c *amqpConn) closed() bool { return c.conn.Load() == nil }

// AMQPProducer publishes persistent messages to a topic exchange and waits
// for the broker to confirm each one.
type AMQPProducer struct {
	conn     *amqpConn
	exchange string
	logger   *slog.Logger
	metrics  *metrics.Metrics

	mu sync.Mutex
}

func NewAMQPProducer(cfg AMQPConfig, logger *slog.Logger, m *metrics.Metrics) (*AMQPProducer, error) {
	conn, err := dialAMQP(cfg)
	if err != nil {
		return nil, err
	}
	if err := conn.ch.Confirm(false); err != nil {
		conn.close(logger)
		return nil, fmt.Errorf("amqp confirm mode: %w", err)
	}
	return &AMQPProducer{conn: conn, exchange: cfg.Exchange, logger: logger, metrics: m}, nil
}

func (p *AMQPProducer) Publish(ctx context.Context, events []logevent.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn.closed() {
		return ErrClosed
	}

	for i, ev := range events {
		body, err := Wrap(ev)
		if err != nil {
			return err
		}
		if err := p.publishOne(ctx, ev, body); err != nil {
			p.metrics.QueueError(transportAMQP, "produce")
			p.logger.Error("amqp publish failed", "exchange", p.exchange, "index", i, "error", err)
			return fmt.Errorf("publish event %d: %w", i, err)
		}
	}
	return nil
}

func (p *AMQPProducer) publishOne(ctx context.Context, ev logevent.Event, body []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	confirm, err := p.conn.ch.PublishWithDeferredConfirmWithContext(pubCtx, p.exchange, routingKey(ev), false, false,
		amqp.Publishing{
			ContentType:  envelopeContentType,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    uuid.NewString(),
			AppId:        ev.Source(),
			Body:         body,
		})
	if err != nil {
		return err
	}
	acked, err := confirm.WaitContext(pubCtx)
	if err != nil {
		return err
	}
	if !acked {
		return errors.New("broker nacked message")
	}
	return nil
}

func (p *AMQPProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.close(p.logger)
}

// AMQPConsumer reads a durable queue bound to the exchange with "#".
type AMQPConsumer struct {
	conn    *amqpConn
	queue   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewAMQPConsumer(cfg AMQPConfig, logger *slog.Logger, m *metrics.Metrics) (*AMQPConsumer, error) {
	if cfg.Queue == "" {
		return nil, errors.New("amqp: queue required")
	}
	conn, err := dialAMQP(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		conn.close(logger)
		return nil, fmt.Errorf("queue declare: %w", err)
	}
	if err := conn.ch.QueueBind(cfg.Queue, "#", cfg.Exchange, false, nil); err != nil {
		conn.close(logger)
		return nil, fmt.Errorf("queue bind: %w", err)
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 50
	}
	if err := conn.ch.Qos(prefetch, 0, false); err != nil {
		conn.close(logger)
		return nil, fmt.Errorf("qos: %w", err)
	}
	return &AMQPConsumer{conn: conn, queue: cfg.Queue, logger: logger, metrics: m}, nil
}

// Run consumes until ctx is cancelled or the broker closes the delivery
// channel. Handled messages are acked; undecodable ones are dropped with a
// nack so they are not redelivered.
func (c *AMQPConsumer) Run(ctx context.Context, handle Handler) error {
	if c.conn.closed() {
		return ErrClosed
	}
	defer c.Close()

	deliveries, err := c.conn.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}
	c.logger.Info("consuming amqp queue", "queue", c.queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("amqp consumption stopped", "queue", c.queue)
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				c.metrics.QueueError(transportAMQP, "consume")
				return errors.New("amqp delivery channel closed")
			}
			c.process(ctx, d, handle)
		}
	}
}

func (c *AMQPConsumer) process(ctx context.Context, d amqp.Delivery, handle Handler) {
	ev, err := Unwrap(d.Body)
	if err != nil {
		c.metrics.QueueError(transportAMQP, "unwrap")
		c.logger.Error("skipping undecodable message", "message_id", d.MessageId, "error", err)
		if err := d.Nack(false, false); err != nil {
			c.logger.Warn("amqp nack", "error", err)
		}
		return
	}
	if err := handle(ctx, ev); err != nil {
		c.logger.Error("log event handler failed", "message_id", d.MessageId, "error", err)
	}
	if err := d.Ack(false); err != nil {
		c.metrics.QueueError(transportAMQP, "ack")
		c.logger.Warn("amqp ack", "error", err)
	}
}

func (c *AMQPConsumer) Close() { c.conn.close(c.logger) }
