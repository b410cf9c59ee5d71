package queue

import (
	"context"
	"log/slog"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
)

// Pump runs c in its own goroutine and forwards every consumed event to the
// returned channel. A full channel blocks the receive loop, which holds back
// broker reads until the reader catches up. The channel is closed when the
// consumer stops.
func Pump(ctx context.Context, c Consumer, buffer int, logger *slog.Logger) <-chan logevent.Event {
	if buffer < 0 {
		buffer = 0
	}
	out := make(chan logevent.Event, buffer)
	go func() {
		defer close(out)
		err := c.Run(ctx, func(ctx context.Context, e logevent.Event) error {
			select {
			case out <- e:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			logger.Error("queue consumer stopped", "error", err)
		}
	}()
	return out
}
