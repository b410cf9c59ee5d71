package sentinel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

const (
	titlePrefix        = "Sentinel Alert #"
	projectDescription = "Auto-created project for Sentinel log events."
)

// PriorityFor maps a level to a work item priority. Levels outside the
// canonical set get no priority.
func PriorityFor(l logevent.Level) *tracker.Priority {
	var p tracker.Priority
	switch l {
	case logevent.LevelCritical, logevent.LevelError:
		p = tracker.PriorityHigh
	case logevent.LevelWarning:
		p = tracker.PriorityMedium
	case logevent.LevelInformation, logevent.LevelDebug, logevent.LevelTrace:
		p = tracker.PriorityLow
	default:
		return nil
	}
	return &p
}

// Creator files accepted events as work items in the configured project.
type Creator struct {
	cfg       Config
	projects  tracker.ProjectService
	workItems tracker.WorkItemService
	mode      logevent.FingerprintMode
	logger    *slog.Logger
}

func NewCreator(cfg Config, projects tracker.ProjectService, workItems tracker.WorkItemService, logger *slog.Logger) *Creator {
	return &Creator{
		cfg:       cfg,
		projects:  projects,
		workItems: workItems,
		mode:      logevent.FingerprintTemplate,
		logger:    logger,
	}
}

func (c *Creator) Create(ctx context.Context, e logevent.Event) (tracker.WorkItem, error) {
	project, err := c.ensureProject(ctx)
	if err != nil {
		return tracker.WorkItem{}, err
	}

	existing, err := c.workItems.List(ctx, project.ID)
	if err != nil {
		return tracker.WorkItem{}, fmt.Errorf("list work items: %w", err)
	}

	item, err := c.workItems.Create(ctx, project.ID, tracker.CreateWorkItemRequest{
		Title:       nextTitle(existing),
		Description: e.Message(),
		Status:      tracker.StatusNew,
		Priority:    PriorityFor(e.Level()),
		SourceLabel: tracker.SourceSentinel,
		SourceData:  sourceData(e, e.Fingerprint(c.mode)),
	})
	if err != nil {
		return tracker.WorkItem{}, fmt.Errorf("create work item: %w", err)
	}

	c.logger.Info("created work item",
		"id", item.ID,
		"title", item.Title,
		"project", project.Title,
		"level", e.Level().String())
	return item, nil
}

func (c *Creator) ensureProject(ctx context.Context) (tracker.Project, error) {
	project, err := c.projects.GetByName(ctx, c.cfg.ProjectName)
	if err == nil {
		return project, nil
	}
	if !errors.Is(err, tracker.ErrNotFound) {
		return tracker.Project{}, fmt.Errorf("resolve project: %w", err)
	}

	project, err = c.projects.Create(ctx, tracker.CreateProjectRequest{
		Title:       c.cfg.ProjectName,
		Description: projectDescription,
		SourceLabel: tracker.SourceSentinel,
	})
	if err != nil {
		return tracker.Project{}, fmt.Errorf("create project: %w", err)
	}
	c.logger.Info("created project", "id", project.ID, "title", project.Title)
	return project, nil
}

// nextTitle numbers a new alert one past the last Sentinel item in creation
// order. When that title has no numeric suffix the count of Sentinel items
// is used instead.
func nextTitle(items []tracker.WorkItem) string {
	var (
		count int
		last  string
	)
	for _, item := range items {
		if item.SourceLabel != tracker.SourceSentinel {
			continue
		}
		count++
		last = item.Title
	}
	if count == 0 {
		return titlePrefix + "1"
	}

	if i := strings.LastIndex(last, "#"); i >= 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(last[i+1:])); err == nil {
			return titlePrefix + strconv.Itoa(n+1)
		}
	}
	return titlePrefix + strconv.Itoa(count+1)
}
