package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/pulseguard/core/pkg/store"
	"github.com/pulseguard/core/pkg/target"
)

// createMonitorRequest is the wire shape for POST /api/monitors. Zero-value
// tuning fields fall back to the server's probe defaults in applyDefaults.
type createMonitorRequest struct {
	OwnerID                string `json:"owner_id" binding:"required"`
	Name                   string `json:"name" binding:"required"`
	Target                 string `json:"target" binding:"required"`
	Protocol               string `json:"protocol" binding:"required"`
	Port                   *int   `json:"port"`
	IntervalMinutes        int    `json:"interval_minutes" binding:"required"`
	TimeoutMs              int    `json:"timeout_ms"`
	DegradedThresholdMs    int    `json:"degraded_threshold_ms"`
	SSLExpiryThresholdDays int    `json:"ssl_expiry_threshold_days"`
	AllowUnauthorized      bool   `json:"allow_unauthorized"`
	StrictMode             bool   `json:"strict_mode"`
	AlertThreshold         int    `json:"alert_threshold"`
}

// updateMonitorRequest is the wire shape for PATCH /api/monitors/:id. All
// fields are pointers so an absent field leaves the stored value alone.
type updateMonitorRequest struct {
	Name                   *string `json:"name"`
	Target                 *string `json:"target"`
	Protocol               *string `json:"protocol"`
	Port                   *int    `json:"port"`
	IntervalMinutes        *int    `json:"interval_minutes"`
	TimeoutMs              *int    `json:"timeout_ms"`
	DegradedThresholdMs    *int    `json:"degraded_threshold_ms"`
	SSLExpiryThresholdDays *int    `json:"ssl_expiry_threshold_days"`
	AllowUnauthorized      *bool   `json:"allow_unauthorized"`
	StrictMode             *bool   `json:"strict_mode"`
	Active                 *bool   `json:"active"`
	AlertThreshold         *int    `json:"alert_threshold"`
}

// createMonitor implements spec §6's createMonitor(spec): validate the
// target against its protocol, persist the monitor, then hand it to the
// scheduler for its first immediate check.
func (s *Server) createMonitor(c *gin.Context) {
	var req createMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := target.Validate(req.Target, req.Protocol)
	if !result.OK {
		c.JSON(http.StatusBadRequest, gin.H{"error": result.Message, "error_type": result.ErrorType})
		return
	}

	m := &store.Monitor{
		OwnerID:                req.OwnerID,
		Name:                   req.Name,
		Target:                 req.Target,
		Protocol:               req.Protocol,
		Port:                   req.Port,
		IntervalMinutes:        req.IntervalMinutes,
		TimeoutMs:              req.TimeoutMs,
		DegradedThresholdMs:    req.DegradedThresholdMs,
		SSLExpiryThresholdDays: req.SSLExpiryThresholdDays,
		AllowUnauthorized:      req.AllowUnauthorized,
		StrictMode:             req.StrictMode,
		Active:                 true,
		AlertThreshold:         req.AlertThreshold,
	}
	s.applyDefaults(m)

	if err := s.monitors.Create(m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create monitor"})
		return
	}

	if err := s.scheduler.EnqueueImmediate(c.Request.Context(), m.ID); err != nil {
		// The monitor is persisted; the Sentinel will pick it up within its
		// next sweep even if the immediate enqueue failed here.
		c.JSON(http.StatusCreated, gin.H{"monitor": m, "warning": "failed to schedule the first check"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"monitor": m})
}

// updateMonitor implements updateMonitor(id, patch). A protocol or target
// change re-validates the target; a protocol, target, port, or interval
// change immediately re-arms the monitor's next check against the new
// configuration.
func (s *Server) updateMonitor(c *gin.Context) {
	id := c.Param("id")

	m, err := s.monitors.GetByID(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not found"})
		return
	}

	var req updateMonitorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reschedule := applyUpdate(m, req)

	if req.Target != nil || req.Protocol != nil {
		result := target.Validate(m.Target, m.Protocol)
		if !result.OK {
			c.JSON(http.StatusBadRequest, gin.H{"error": result.Message, "error_type": result.ErrorType})
			return
		}
	}

	if err := s.monitors.Update(m); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update monitor"})
		return
	}

	if reschedule {
		if err := s.scheduler.EnqueueImmediate(c.Request.Context(), m.ID); err != nil {
			c.JSON(http.StatusOK, gin.H{"monitor": m, "warning": "failed to reschedule after update"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"monitor": m})
}

func applyUpdate(m *store.Monitor, req updateMonitorRequest) (reschedule bool) {
	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.Target != nil {
		m.Target = *req.Target
		reschedule = true
	}
	if req.Protocol != nil {
		m.Protocol = *req.Protocol
		reschedule = true
	}
	if req.Port != nil {
		m.Port = req.Port
		reschedule = true
	}
	if req.IntervalMinutes != nil {
		m.IntervalMinutes = *req.IntervalMinutes
		reschedule = true
	}
	if req.TimeoutMs != nil {
		m.TimeoutMs = *req.TimeoutMs
	}
	if req.DegradedThresholdMs != nil {
		m.DegradedThresholdMs = *req.DegradedThresholdMs
	}
	if req.SSLExpiryThresholdDays != nil {
		m.SSLExpiryThresholdDays = *req.SSLExpiryThresholdDays
	}
	if req.AllowUnauthorized != nil {
		m.AllowUnauthorized = *req.AllowUnauthorized
	}
	if req.StrictMode != nil {
		m.StrictMode = *req.StrictMode
	}
	if req.AlertThreshold != nil {
		m.AlertThreshold = *req.AlertThreshold
	}
	if req.Active != nil {
		m.Active = *req.Active
	}
	return reschedule
}

// deleteMonitor implements deleteMonitor(id): clear the monitor's queue
// entries before dropping its row, so a job that's already due doesn't
// resurrect a deleted monitor's check.
func (s *Server) deleteMonitor(c *gin.Context) {
	id := c.Param("id")

	if err := s.scheduler.RemoveMonitor(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to clear queue entries"})
		return
	}
	if err := s.monitors.Delete(id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete monitor"})
		return
	}
	c.Status(http.StatusNoContent)
}

// triggerImmediate implements triggerImmediate(id): enqueue an out-of-band
// check without disturbing the monitor's regular schedule.
func (s *Server) triggerImmediate(c *gin.Context) {
	id := c.Param("id")

	if _, err := s.monitors.GetByID(id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not found"})
		return
	}
	if err := s.scheduler.EnqueueImmediate(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue immediate check"})
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) getMonitor(c *gin.Context) {
	m, err := s.monitors.GetByID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "monitor not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"monitor": m})
}

func (s *Server) listMonitors(c *gin.Context) {
	monitors, err := s.monitors.ListActive()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list monitors"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"monitors": monitors})
}

func (s *Server) applyDefaults(m *store.Monitor) {
	if m.TimeoutMs <= 0 {
		m.TimeoutMs = s.probeDefaults.DefaultTimeoutMs
	}
	if m.DegradedThresholdMs <= 0 {
		m.DegradedThresholdMs = s.probeDefaults.DefaultDegradedMs
	}
	if m.SSLExpiryThresholdDays <= 0 {
		m.SSLExpiryThresholdDays = s.probeDefaults.DefaultSSLExpiryDays
	}
	if m.AlertThreshold <= 0 {
		m.AlertThreshold = 1
	}
}
