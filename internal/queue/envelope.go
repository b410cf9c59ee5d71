// Package queue carries log events across processes through an external
// broker. Kafka is the primary transport; AMQP is supported as an
// alternative. Both use the same JSON envelope.
package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
)

var ErrClosed = errors.New("queue: closed")

// Handler processes one consumed event.
type Handler func(ctx context.Context, e logevent.Event) error

// Consumer runs a receive loop until ctx is cancelled.
type Consumer interface {
	Run(ctx context.Context, handle Handler) error
}

const envelopeContentType = "application/json"

// Wrap serialises one event as the message value: the event's camelCase
// JSON form.
func Wrap(e logevent.Event) ([]byte, error) {
	b, err := e.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("wrap event: %w", err)
	}
	return b, nil
}

// Unwrap decodes a message value. Events missing a message or source are
// rejected.
func Unwrap(data []byte) (logevent.Event, error) {
	var e logevent.Event
	if err := e.UnmarshalJSON(data); err != nil {
		return logevent.Event{}, fmt.Errorf("unwrap event: %w", err)
	}
	return e, nil
}
