package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LukasLeindals/ergonaut/internal/auth"
	"github.com/LukasLeindals/ergonaut/internal/bus"
	"github.com/LukasLeindals/ergonaut/internal/handlers"
	"github.com/LukasLeindals/ergonaut/internal/ingest"
	"github.com/LukasLeindals/ergonaut/internal/metrics"
	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

// Deps are the collaborators the router serves. Hub and Metrics may be nil.
type Deps struct {
	APIKey   string
	Pipeline *ingest.Pipeline
	Tracker  tracker.Tracker
	Hub      *bus.Hub
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

// NewRouter wires public endpoints and authenticated APIs.
// Public: /health, /ready, /metrics
// Authenticated: /ingest/logs, /v1/logs, /projects/:name/workitems
func NewRouter(d Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery(), d.Metrics.Middleware())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		body := gin.H{"status": "ok"}
		if d.Hub != nil {
			body["bus"] = d.Hub.Stats()
		}
		c.JSON(http.StatusOK, body)
	})

	// Readiness: confirms the tracker store is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := d.Tracker.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	authGroup := r.Group("/")
	authGroup.Use(auth.APIKeyMiddleware(d.APIKey))

	handlers.RegisterIngestRoutes(authGroup, d.Pipeline, d.Logger)
	handlers.RegisterWorkItemRoutes(authGroup, d.Tracker)

	return r
}
