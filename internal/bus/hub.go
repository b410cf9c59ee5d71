// Package bus is the in-process fan-out hub for log events. Publishers never
// wait on subscribers: each subscriber has a bounded queue and is evicted
// when it keeps failing to accept deliveries.
package bus

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/metrics"
)

var ErrClosed = errors.New("bus: closed")

const (
	DefaultCapacity        = 1000
	DefaultMaxFailures     = 5
	DefaultShutdownTimeout = 5 * time.Second
)

type Option func(*Hub)

// WithCapacity sets the queue size of subscribers created afterwards.
func WithCapacity(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.capacity = n
		}
	}
}

// WithMaxFailures sets how many consecutive failed deliveries a subscriber
// may accumulate. It is evicted on the next one.
func WithMaxFailures(n int) Option {
	return func(h *Hub) {
		if n >= 0 {
			h.maxFailures = n
		}
	}
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.shutdownTimeout = d
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Stats is a point-in-time view of hub counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Dispatched  uint64 `json:"dispatched"`
	Delivered   uint64 `json:"delivered"`
	Evicted     uint64 `json:"evicted"`
}

type Hub struct {
	logger          *slog.Logger
	metrics         *metrics.Metrics
	capacity        int
	maxFailures     int
	shutdownTimeout time.Duration

	// inbox is unbounded; signal wakes the dispatcher after appends.
	inboxMu sync.Mutex
	inbox   []logevent.Event
	closed  bool
	signal  chan struct{}

	subsMu sync.Mutex
	subs   []*subscriber

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	published  atomic.Uint64
	dispatched atomic.Uint64
	delivered  atomic.Uint64
	evicted    atomic.Uint64
}

// New starts a hub with its dispatcher goroutine. Call Close to stop it.
func New(logger *slog.Logger, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		logger:          logger,
		capacity:        DefaultCapacity,
		maxFailures:     DefaultMaxFailures,
		shutdownTimeout: DefaultShutdownTimeout,
		signal:          make(chan struct{}, 1),
		cancel:          cancel,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	go h.dispatch(ctx)
	return h
}

// Publish appends events to the inbox. It never waits for subscribers.
func (h *Hub) Publish(ctx context.Context, events []logevent.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.inboxMu.Lock()
	if h.closed {
		h.inboxMu.Unlock()
		return ErrClosed
	}
	h.inbox = append(h.inbox, events...)
	h.inboxMu.Unlock()

	h.published.Add(uint64(len(events)))
	select {
	case h.signal <- struct{}{}:
	default:
	}
	return nil
}

// Subscribe registers a new subscriber. A blank name becomes "unknown".
func (h *Hub) Subscribe(name string) (*Subscription, error) {
	if strings.TrimSpace(name) == "" {
		name = "unknown"
	}
	h.inboxMu.Lock()
	closed := h.closed
	h.inboxMu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	sub := newSubscriber(name, h.capacity)
	h.subsMu.Lock()
	h.subs = append(h.subs, sub)
	h.subsMu.Unlock()

	h.logger.Debug("subscriber registered", "subscriber", name)
	return &Subscription{hub: h, sub: sub}, nil
}

func (h *Hub) Stats() Stats {
	h.subsMu.Lock()
	n := len(h.subs)
	h.subsMu.Unlock()
	return Stats{
		Subscribers: n,
		Published:   h.published.Load(),
		Dispatched:  h.dispatched.Load(),
		Delivered:   h.delivered.Load(),
		Evicted:     h.evicted.Load(),
	}
}

func (h *Hub) remove(target *subscriber) bool {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	i := slices.Index(h.subs, target)
	if i < 0 {
		return false
	}
	h.subs = slices.Delete(h.subs, i, i+1)
	return true
}

func (h *Hub) snapshot() []*subscriber {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()
	return slices.Clone(h.subs)
}

// take drains the whole inbox in publish order.
func (h *Hub) take() []logevent.Event {
	h.inboxMu.Lock()
	defer h.inboxMu.Unlock()
	batch := h.inbox
	h.inbox = nil
	return batch
}

func (h *Hub) dispatch(ctx context.Context) {
	defer close(h.done)
	for {
		for _, ev := range h.take() {
			if ctx.Err() != nil {
				return
			}
			h.deliver(ev)
		}
		select {
		case <-ctx.Done():
			return
		case <-h.signal:
		}
	}
}

// deliver offers ev to every live subscriber without blocking.
func (h *Hub) deliver(ev logevent.Event) {
	h.dispatched.Add(1)
	for _, sub := range h.snapshot() {
		if sub.tryWrite(ev) {
			h.delivered.Add(1)
			h.metrics.BusDelivered()
			continue
		}
		failures := sub.failureCount()
		if failures <= h.maxFailures {
			continue
		}
		if h.remove(sub) {
			sub.close()
			h.evicted.Add(1)
			h.metrics.BusEvicted()
			h.logger.Warn("evicting slow subscriber",
				"subscriber", sub.name,
				"failures", failures)
		}
	}
}

// Close stops accepting events, waits up to the shutdown timeout for the
// dispatcher and closes every remaining subscriber. Safe to call repeatedly.
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.inboxMu.Lock()
		h.closed = true
		h.inboxMu.Unlock()

		h.cancel()
		select {
		case <-h.done:
		case <-time.After(h.shutdownTimeout):
			h.logger.Warn("bus dispatcher did not stop in time", "timeout", h.shutdownTimeout)
		}

		h.subsMu.Lock()
		subs := h.subs
		h.subs = nil
		h.subsMu.Unlock()
		for _, sub := range subs {
			sub.close()
		}
	})
}
