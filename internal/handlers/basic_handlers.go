package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"otc-backend/internal/services"
)

// HealthHandler reports service liveness and reconciliation health.
type HealthHandler struct {
	reconcileService *services.ReconcileService
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(reconcileService *services.ReconcileService) *HealthHandler {
	return &HealthHandler{reconcileService: reconcileService}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReconcileHealth handles GET /api/v1/reconcile/health
func (h *HealthHandler) ReconcileHealth(c *gin.Context) {
	health := h.reconcileService.CheckHealth(c.Request.Context())
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

// TriggerSweep handles POST /api/v1/admin/reconcile/sweep
func (h *HealthHandler) TriggerSweep(c *gin.Context) {
	updated, failed, err := h.reconcileService.SweepActive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "updated": updated, "failed": failed})
}
