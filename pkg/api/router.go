// Package api exposes the thin Consumed-API HTTP surface (spec §6):
// monitor CRUD and manual trigger, mapped directly onto the Scheduler.
// There is no session/JWT/role layer here — authentication and
// authorization are an external collaborator, per spec.md's Out of scope.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseguard/core/pkg/config"
	"github.com/pulseguard/core/pkg/store"
)

// scheduler is the subset of *scheduler.Scheduler the API depends on,
// declared here rather than imported concretely so handler behavior can be
// exercised against a stub without pulling in the coordination/queue stack.
type scheduler interface {
	EnqueueImmediate(ctx context.Context, monitorID string) error
	RemoveMonitor(ctx context.Context, monitorID string) error
}

// Server holds the collaborators the admin API's handlers need.
type Server struct {
	monitors      *store.MonitorStore
	scheduler     scheduler
	probeDefaults config.ProbeConfig
}

// NewRouter builds the gin engine for the admin API. metricsHandler is
// typically promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), built by
// the caller so this package doesn't need to own the Prometheus registry.
func NewRouter(env string, monitors *store.MonitorStore, sched scheduler, probeDefaults config.ProbeConfig, metricsHandler http.Handler) *gin.Engine {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{monitors: monitors, scheduler: sched, probeDefaults: probeDefaults}

	r := gin.New()
	r.Use(gin.Recovery(), loggingMiddleware(), corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(metricsHandler))

	monitorRoutes := r.Group("/api/monitors")
	{
		monitorRoutes.GET("", s.listMonitors)
		monitorRoutes.POST("", s.createMonitor)
		monitorRoutes.GET("/:id", s.getMonitor)
		monitorRoutes.PATCH("/:id", s.updateMonitor)
		monitorRoutes.DELETE("/:id", s.deleteMonitor)
		monitorRoutes.POST("/:id/trigger", s.triggerImmediate)
	}

	return r
}
