package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/LukasLeindals/ergonaut/internal/models"
	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

// RegisterWorkItemRoutes registers read and delete access to the tickets
// Sentinel files.
//
// GET    /projects/:name/workitems
// GET    /projects/:name/workitems/:id
// DELETE /projects/:name/workitems/:id
func RegisterWorkItemRoutes(r gin.IRoutes, tr tracker.Tracker) {
	r.GET("/projects/:name/workitems", func(c *gin.Context) {
		project, ok := resolveProject(c, tr)
		if !ok {
			return
		}
		items, err := tr.WorkItems().List(c.Request.Context(), project.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list work items failed"})
			return
		}

		out := make([]models.WorkItemResponse, 0, len(items))
		for _, item := range items {
			out = append(out, models.NewWorkItemResponse(item))
		}
		c.JSON(http.StatusOK, models.WorkItemListResponse{
			Project: project.Title,
			Count:   len(out),
			Items:   out,
		})
	})

	r.GET("/projects/:name/workitems/:id", func(c *gin.Context) {
		project, id, ok := resolveItem(c, tr)
		if !ok {
			return
		}
		item, err := tr.WorkItems().Get(c.Request.Context(), project.ID, id)
		if errors.Is(err, tracker.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "work item not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "get work item failed"})
			return
		}
		c.JSON(http.StatusOK, models.NewWorkItemResponse(item))
	})

	r.DELETE("/projects/:name/workitems/:id", func(c *gin.Context) {
		project, id, ok := resolveItem(c, tr)
		if !ok {
			return
		}
		err := tr.WorkItems().Delete(c.Request.Context(), project.ID, id)
		if errors.Is(err, tracker.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "work item not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "delete work item failed"})
			return
		}
		c.Status(http.StatusNoContent)
	})
}

func resolveProject(c *gin.Context, tr tracker.Tracker) (tracker.Project, bool) {
	project, err := tr.Projects().GetByName(c.Request.Context(), c.Param("name"))
	if errors.Is(err, tracker.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return tracker.Project{}, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "project lookup failed"})
		return tracker.Project{}, false
	}
	return project, true
}

func resolveItem(c *gin.Context, tr tracker.Tracker) (tracker.Project, uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a UUID"})
		return tracker.Project{}, uuid.Nil, false
	}
	project, ok := resolveProject(c, tr)
	return project, id, ok
}
