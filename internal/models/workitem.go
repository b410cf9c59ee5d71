package models

import (
	"encoding/json"
	"time"

	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

// WorkItemResponse is the JSON form of a work item returned by
// GET /projects/:name/workitems[/:id].
type WorkItemResponse struct {
	ID          string                     `json:"id"`
	ProjectID   string                     `json:"project_id"`
	Title       string                     `json:"title"`
	Description string                     `json:"description,omitempty"`
	Status      string                     `json:"status"`
	Priority    *string                    `json:"priority,omitempty"`
	SourceLabel string                     `json:"source_label"`
	SourceData  map[string]json.RawMessage `json:"source_data,omitempty"`
	DueDate     *time.Time                 `json:"due_date,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	UpdatedAt   time.Time                  `json:"updated_at"`
}

func NewWorkItemResponse(w tracker.WorkItem) WorkItemResponse {
	resp := WorkItemResponse{
		ID:          w.ID.String(),
		ProjectID:   w.ProjectID.String(),
		Title:       w.Title,
		Description: w.Description,
		Status:      string(w.Status),
		SourceLabel: string(w.SourceLabel),
		SourceData:  w.SourceData,
		DueDate:     w.DueDate,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
	if w.Priority != nil {
		p := string(*w.Priority)
		resp.Priority = &p
	}
	return resp
}

// WorkItemListResponse wraps a project's work items.
type WorkItemListResponse struct {
	Project string             `json:"project"`
	Count   int                `json:"count"`
	Items   []WorkItemResponse `json:"items"`
}
