package sentinel

import (
	"context"
	"errors"
	"fmt"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

const (
	keyMessageTemplate = "messageTemplate"
	keyMessage         = "message"
)

type Filter struct {
	cfg       Config
	projects  tracker.ProjectService
	workItems tracker.WorkItemService
}

func NewFilter(cfg Config, projects tracker.ProjectService, workItems tracker.WorkItemService) *Filter {
	return &Filter{cfg: cfg, projects: projects, workItems: workItems}
}

// Accept rejects events below the minimum level and events already covered
// by an open work item with the same template, or the same message when the
// event has no template.
func (f *Filter) Accept(e logevent.Event, existing []tracker.WorkItem) bool {
	if e.Level() < f.cfg.MinimumLevel {
		return false
	}

	key, want := keyMessageTemplate, e.MessageTemplate()
	if want == "" {
		key, want = keyMessage, e.Message()
	}
	for _, item := range existing {
		if item.Status.Closed() {
			continue
		}
		if got, ok := item.SourceString(key); ok && got == want {
			return false
		}
	}
	return true
}

// Evaluate loads the target project's work items and applies Accept. A
// project that does not exist yet has no work items.
func (f *Filter) Evaluate(ctx context.Context, e logevent.Event) (bool, error) {
	if e.Level() < f.cfg.MinimumLevel {
		return false, nil
	}
	project, err := f.projects.GetByName(ctx, f.cfg.ProjectName)
	if errors.Is(err, tracker.ErrNotFound) {
		return f.Accept(e, nil), nil
	}
	if err != nil {
		return false, fmt.Errorf("resolve project: %w", err)
	}
	items, err := f.workItems.List(ctx, project.ID)
	if err != nil {
		return false, fmt.Errorf("list work items: %w", err)
	}
	return f.Accept(e, items), nil
}
