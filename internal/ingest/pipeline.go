// Package ingest runs OTLP payloads through decoding and flattening and hands
// the resulting events to a publisher.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/metrics"
	"github.com/LukasLeindals/ergonaut/internal/otlp"
)

// ErrPublish marks a result whose events were decoded but could not be
// handed on. Callers may retry the whole payload.
var ErrPublish = errors.New("ingest: publish failed")

// Publisher accepts a batch of events. The bus, the Kafka and AMQP producers
// and MultiPublisher implement it.
type Publisher interface {
	Publish(ctx context.Context, events []logevent.Event) error
}

// Result summarises one Ingest call. Events is empty on failure.
type Result struct {
	Success  bool
	Events   []logevent.Event
	Dropped  int
	Warnings []string
	Errors   []string
	Err      error
}

// Accepted is the number of events that were published.
func (r Result) Accepted() int { return len(r.Events) }

func failure(err error, reasons ...string) Result {
	return Result{Errors: reasons, Err: err}
}

type Pipeline struct {
	adapter   *otlp.Adapter
	publisher Publisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewPipeline(publisher Publisher, logger *slog.Logger, m *metrics.Metrics) *Pipeline {
	return &Pipeline{
		adapter:   otlp.NewAdapter(),
		publisher: publisher,
		logger:    logger,
		metrics:   m,
	}
}

// Ingest decodes payload, flattens it and publishes the events in one batch.
// Zero accepted records is still a success.
func (p *Pipeline) Ingest(ctx context.Context, payload []byte, pc otlp.ParseContext) Result {
	if len(payload) == 0 {
		p.metrics.PayloadRejected("empty")
		return failure(otlp.ErrEmptyPayload, "Payload is empty.")
	}

	req, err := otlp.Parse(payload, pc)
	if err != nil {
		var pe *otlp.ParseError
		reasons := []string{err.Error()}
		if errors.As(err, &pe) {
			reasons = pe.Errors
		}
		p.logger.Warn("rejecting otlp payload",
			"format", pc.Format.String(),
			"source", pc.Source,
			"errors", reasons)
		p.metrics.PayloadRejected("parse")
		return failure(err, reasons...)
	}

	out, err := p.adapter.Transform(ctx, req)
	if err != nil {
		return failure(err, err.Error())
	}

	if out.Dropped > 0 {
		p.logger.Warn("dropped otlp log records",
			"dropped", out.Dropped,
			"source", pc.Source,
			"warnings", out.Warnings)
		p.metrics.RecordsDropped(out.Dropped)
	}

	if len(out.Events) > 0 {
		if err := p.publisher.Publish(ctx, out.Events); err != nil {
			p.logger.Error("publish ingested events", "count", len(out.Events), "error", err)
			return Result{
				Dropped:  out.Dropped,
				Warnings: out.Warnings,
				Errors:   []string{err.Error()},
				Err:      fmt.Errorf("%w: %w", ErrPublish, err),
			}
		}
		p.metrics.RecordsIngested(len(out.Events))
	}

	return Result{
		Success:  true,
		Events:   out.Events,
		Dropped:  out.Dropped,
		Warnings: out.Warnings,
	}
}

// MultiPublisher hands every batch to each publisher in order and returns the
// joined errors of those that failed.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, events []logevent.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
