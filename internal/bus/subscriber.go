package bus

import (
	"sync"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
)

// subscriber is one bounded queue. mu guards closed so the dispatcher never
// sends on a closed channel while Close or eviction runs concurrently.
type subscriber struct {
	name  string
	queue chan logevent.Event

	mu       sync.Mutex
	closed   bool
	failures int
}

func newSubscriber(name string, capacity int) *subscriber {
	return &subscriber{name: name, queue: make(chan logevent.Event, capacity)}
}

// tryWrite enqueues without blocking. It reports false when the queue is
// full or already closed.
func (s *subscriber) tryWrite(e logevent.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- e:
		s.failures = 0
		return true
	default:
		s.failures++
		return false
	}
}

func (s *subscriber) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.queue)
}

// Subscription is the consumer side of a subscriber.
type Subscription struct {
	hub *Hub
	sub *subscriber
}

func (s *Subscription) Name() string { return s.sub.name }

// Events yields events in publish order. The channel is closed when the
// subscription is closed, evicted or the hub shuts down.
func (s *Subscription) Events() <-chan logevent.Event { return s.sub.queue }

// Close deregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.sub)
	s.sub.close()
}
