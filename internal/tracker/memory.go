package tracker

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Tracker. It backs tests and single-node runs
// without a database.
type Memory struct {
	mu        sync.Mutex
	projects  []Project
	workItems map[uuid.UUID][]WorkItem
	now       func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		workItems: make(map[uuid.UUID][]WorkItem),
		now:       time.Now,
	}
}

func (m *Memory) Projects() ProjectService   { return memoryProjects{m} }
func (m *Memory) WorkItems() WorkItemService { return memoryWorkItems{m} }
func (m *Memory) Ping(context.Context) error { return nil }

type memoryProjects struct{ m *Memory }

func (p memoryProjects) GetByName(_ context.Context, name string) (Project, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	for _, pr := range p.m.projects {
		if strings.EqualFold(pr.Title, name) {
			return pr, nil
		}
	}
	return Project{}, fmt.Errorf("project %q: %w", name, ErrNotFound)
}

// Create returns the existing project when the title is already taken, the
// same convergence the Postgres store gets from its unique index.
func (p memoryProjects) Create(_ context.Context, req CreateProjectRequest) (Project, error) {
	if strings.TrimSpace(req.Title) == "" {
		return Project{}, fmt.Errorf("project title required")
	}
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	for _, pr := range p.m.projects {
		if strings.EqualFold(pr.Title, req.Title) {
			return pr, nil
		}
	}
	now := p.m.now().UTC()
	pr := Project{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		SourceLabel: req.SourceLabel,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	p.m.projects = append(p.m.projects, pr)
	return pr, nil
}

func (p memoryProjects) List(context.Context) ([]Project, error) {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return append([]Project(nil), p.m.projects...), nil
}

type memoryWorkItems struct{ m *Memory }

func (w memoryWorkItems) projectExists(id uuid.UUID) bool {
	for _, pr := range w.m.projects {
		if pr.ID == id {
			return true
		}
	}
	return false
}

func (w memoryWorkItems) Create(_ context.Context, projectID uuid.UUID, req CreateWorkItemRequest) (WorkItem, error) {
	if strings.TrimSpace(req.Title) == "" {
		return WorkItem{}, fmt.Errorf("work item title required")
	}
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if !w.projectExists(projectID) {
		return WorkItem{}, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	status := req.Status
	if status == "" {
		status = StatusNew
	}
	now := w.m.now().UTC()
	item := WorkItem{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		Priority:    req.Priority,
		SourceLabel: req.SourceLabel,
		SourceData:  maps.Clone(req.SourceData),
		DueDate:     req.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	w.m.workItems[projectID] = append(w.m.workItems[projectID], item)
	return item, nil
}

func (w memoryWorkItems) List(_ context.Context, projectID uuid.UUID) ([]WorkItem, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	if !w.projectExists(projectID) {
		return nil, fmt.Errorf("project %s: %w", projectID, ErrNotFound)
	}
	return append([]WorkItem(nil), w.m.workItems[projectID]...), nil
}

func (w memoryWorkItems) Get(_ context.Context, projectID, id uuid.UUID) (WorkItem, error) {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	for _, item := range w.m.workItems[projectID] {
		if item.ID == id {
			return item, nil
		}
	}
	return WorkItem{}, fmt.Errorf("work item %s: %w", id, ErrNotFound)
}

func (w memoryWorkItems) Delete(_ context.Context, projectID, id uuid.UUID) error {
	w.m.mu.Lock()
	defer w.m.mu.Unlock()
	items := w.m.workItems[projectID]
	for i, item := range items {
		if item.ID == id {
			w.m.workItems[projectID] = append(items[:i:i], items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("work item %s: %w", id, ErrNotFound)
}
