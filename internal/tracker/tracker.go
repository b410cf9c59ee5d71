// Package tracker defines the contracts of the external project/work-item
// tracker that Sentinel files tickets into. The tracker owns its storage;
// callers only go through ProjectService and WorkItemService.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a project or work item does not exist.
var ErrNotFound = errors.New("not found")

type Status string

const (
	StatusNew        Status = "New"
	StatusInProgress Status = "InProgress"
	StatusDone       Status = "Done"
)

// Closed reports whether a work item in this status no longer needs attention.
func (s Status) Closed() bool { return s == StatusDone }

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
)

// SourceLabel records which system created a project or work item.
type SourceLabel string

const (
	SourceLocal    SourceLabel = "Local"
	SourceSentinel SourceLabel = "Sentinel"
)

type Project struct {
	ID          uuid.UUID
	Title       string
	Description string
	SourceLabel SourceLabel
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkItem is a ticket. SourceData is written only by the system named in
// SourceLabel.
type WorkItem struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Title       string
	Description string
	Status      Status
	Priority    *Priority
	SourceLabel SourceLabel
	SourceData  map[string]json.RawMessage
	DueDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SourceString returns SourceData[key] decoded as a JSON string.
func (w WorkItem) SourceString(key string) (string, bool) {
	raw, ok := w.SourceData[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

type CreateProjectRequest struct {
	Title       string
	Description string
	SourceLabel SourceLabel
}

type CreateWorkItemRequest struct {
	Title       string
	Description string
	Status      Status
	Priority    *Priority
	SourceLabel SourceLabel
	SourceData  map[string]json.RawMessage
	DueDate     *time.Time
}

type ProjectService interface {
	GetByName(ctx context.Context, name string) (Project, error)
	Create(ctx context.Context, req CreateProjectRequest) (Project, error)
	List(ctx context.Context) ([]Project, error)
}

// WorkItemService is scoped per project. List returns items in creation order.
type WorkItemService interface {
	Create(ctx context.Context, projectID uuid.UUID, req CreateWorkItemRequest) (WorkItem, error)
	List(ctx context.Context, projectID uuid.UUID) ([]WorkItem, error)
	Get(ctx context.Context, projectID, id uuid.UUID) (WorkItem, error)
	Delete(ctx context.Context, projectID, id uuid.UUID) error
}

// Tracker bundles both services with a readiness probe.
type Tracker interface {
	Projects() ProjectService
	WorkItems() WorkItemService
	Ping(ctx context.Context) error
}
