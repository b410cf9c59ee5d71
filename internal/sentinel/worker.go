package sentinel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/metrics"
	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

// Deduplicator reports whether an event was seen recently.
type Deduplicator interface {
	IsDuplicate(e logevent.Event) bool
}

type Evaluator interface {
	Evaluate(ctx context.Context, e logevent.Event) (bool, error)
}

type TicketCreator interface {
	Create(ctx context.Context, e logevent.Event) (tracker.WorkItem, error)
}

// Worker runs each event through dedup, the filter and ticket creation.
// Filtering and creation run under one lock so two copies of the same
// problem cannot both pass the open-ticket check in this process.
type Worker struct {
	dedup   Deduplicator
	filter  Evaluator
	creator TicketCreator
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu sync.Mutex
}

func NewWorker(dedup Deduplicator, filter Evaluator, creator TicketCreator, logger *slog.Logger, m *metrics.Metrics) *Worker {
	return &Worker{dedup: dedup, filter: filter, creator: creator, logger: logger, metrics: m}
}

// HandleEvent processes one event. Ticket creation is attempted at most once;
// its error is logged and returned but never retried here.
func (w *Worker) HandleEvent(ctx context.Context, e logevent.Event) error {
	if w.dedup.IsDuplicate(e) {
		w.metrics.DuplicateSuppressed()
		w.logger.Debug("duplicate log event", "source", e.Source())
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	accepted, err := w.filter.Evaluate(ctx, e)
	if err != nil {
		w.logger.Error("filter log event", "source", e.Source(), "error", err)
		return err
	}
	w.metrics.FilterDecision(accepted)
	if !accepted {
		w.logger.Debug("log event filtered", "source", e.Source(), "level", e.Level().String())
		return nil
	}

	if _, err := w.creator.Create(ctx, e); err != nil {
		w.metrics.TicketFailed()
		w.logger.Error("create work item", "source", e.Source(), "error", err)
		return err
	}
	w.metrics.TicketCreated()
	return nil
}

// Run handles events from in until it is closed or ctx is done.
func (w *Worker) Run(ctx context.Context, in <-chan logevent.Event) {
	w.logger.Info("sentinel worker started")
	defer w.logger.Info("sentinel worker stopped")
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-in:
			if !ok {
				return
			}
			_ = w.HandleEvent(ctx, e)
		}
	}
}
