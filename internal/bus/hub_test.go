package bus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/logging"
)

func event(t *testing.T, i int) logevent.Event {
	t.Helper()
	ev, err := logevent.New(fmt.Sprintf("message %d", i), "bus-test", time.Unix(int64(i), 0), logevent.LevelWarning)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func receive(t *testing.T, sub *Subscription) logevent.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatalf("subscriber %s closed unexpectedly", sub.Name())
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting on subscriber %s", sub.Name())
	}
	return logevent.Event{}
}

func TestHub_FanOutInOrder(t *testing.T) {
	h := New(logging.Discard())
	defer h.Close()

	a, _ := h.Subscribe("a")
	b, _ := h.Subscribe("b")

	var batch []logevent.Event
	for i := 0; i < 50; i++ {
		batch = append(batch, event(t, i))
	}
	if err := h.Publish(context.Background(), batch); err != nil {
		t.Fatal(err)
	}

	for _, sub := range []*Subscription{a, b} {
		for i := 0; i < 50; i++ {
			if got := receive(t, sub); got.Message() != batch[i].Message() {
				t.Fatalf("%s: event %d = %q, want %q", sub.Name(), i, got.Message(), batch[i].Message())
			}
		}
	}
}

func TestHub_EvictsAfterSixFailures(t *testing.T) {
	h := New(logging.Discard(), WithCapacity(2))
	defer h.Close()

	slow, _ := h.Subscribe("slow")
	healthy, _ := h.Subscribe("healthy")

	// Two publishes fill the slow queue; each later one is a failed delivery.
	for i := 1; i <= 7; i++ {
		if err := h.Publish(context.Background(), []logevent.Event{event(t, i)}); err != nil {
			t.Fatal(err)
		}
		if got := receive(t, healthy); got.Message() != fmt.Sprintf("message %d", i) {
			t.Fatalf("healthy got %q at step %d", got.Message(), i)
		}
	}
	if st := h.Stats(); st.Evicted != 0 || st.Subscribers != 2 {
		t.Fatalf("after 5 failures: %+v", st)
	}

	if err := h.Publish(context.Background(), []logevent.Event{event(t, 8)}); err != nil {
		t.Fatal(err)
	}
	if got := receive(t, healthy); got.Message() != "message 8" {
		t.Fatalf("healthy got %q", got.Message())
	}
	if st := h.Stats(); st.Evicted != 1 || st.Subscribers != 1 {
		t.Fatalf("after 6 failures: %+v", st)
	}

	// The slow queue still holds what it buffered, then reports closed.
	for i := 1; i <= 2; i++ {
		if got := receive(t, slow); got.Message() != fmt.Sprintf("message %d", i) {
			t.Fatalf("slow buffered %q", got.Message())
		}
	}
	if _, ok := <-slow.Events(); ok {
		t.Fatal("evicted subscriber should be closed")
	}
}

func TestHub_SuccessResetsFailures(t *testing.T) {
	h := New(logging.Discard(), WithCapacity(1), WithMaxFailures(1))
	defer h.Close()

	flaky, _ := h.Subscribe("flaky")
	probe, _ := h.Subscribe("probe")

	publish := func(i int) {
		if err := h.Publish(context.Background(), []logevent.Event{event(t, i)}); err != nil {
			t.Fatal(err)
		}
		receive(t, probe)
	}

	publish(1) // queued
	publish(2) // failure 1
	receive(t, flaky)
	publish(3) // queued, resets
	publish(4) // failure 1 again
	if st := h.Stats(); st.Evicted != 0 {
		t.Fatalf("flaky subscriber should survive: %+v", st)
	}
}

func TestSubscription_Close(t *testing.T) {
	h := New(logging.Discard())
	defer h.Close()

	sub, _ := h.Subscribe("")
	if sub.Name() != "unknown" {
		t.Fatalf("name = %q", sub.Name())
	}
	sub.Close()
	sub.Close()

	if st := h.Stats(); st.Subscribers != 0 {
		t.Fatalf("subscribers = %d", st.Subscribers)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("closed subscription should not yield events")
	}
	if err := h.Publish(context.Background(), []logevent.Event{event(t, 1)}); err != nil {
		t.Fatalf("publish with no subscribers: %v", err)
	}
}

func TestHub_Close(t *testing.T) {
	h := New(logging.Discard(), WithShutdownTimeout(time.Second))
	sub, _ := h.Subscribe("worker")

	h.Close()
	h.Close()

	if _, ok := <-sub.Events(); ok {
		t.Fatal("subscribers should be closed on shutdown")
	}
	if err := h.Publish(context.Background(), []logevent.Event{event(t, 1)}); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish after close: %v", err)
	}
	if _, err := h.Subscribe("late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("subscribe after close: %v", err)
	}
}

func TestHub_PublishHonoursContext(t *testing.T) {
	h := New(logging.Discard())
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.Publish(ctx, []logevent.Event{event(t, 1)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
}
