package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pandeptwidyaop/trp-api/internal/services"
)

// ServiceName is reported by the liveness endpoint.
const ServiceName = "trp-api"

// HealthHandler serves the liveness and authenticated health endpoints.
type HealthHandler struct {
	healthService *services.HealthService
	log           logrus.FieldLogger
}

func NewHealthHandler(healthService *services.HealthService, log logrus.FieldLogger) *HealthHandler {
	return &HealthHandler{healthService: healthService, log: log}
}

// Liveness is unauthenticated and used by the proxy and container checks.
// GET /health-check
func (h *HealthHandler) Liveness(c *gin.Context) {
	if err := h.healthService.Liveness(c.Request.Context()); err != nil {
		h.log.WithError(err).Warn("liveness check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": ServiceName})
}

// Health requires basic auth and checks the sales table itself.
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	if err := h.healthService.Readiness(c.Request.Context()); err != nil {
		h.log.WithError(err).Error("health check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
