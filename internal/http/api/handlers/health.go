package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lumenpress/lumenpress/internal/resource"
	log "github.com/sirupsen/logrus"
)

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	svc *resource.Service
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(svc *resource.Service) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Healthz checks store connectivity and returns status.
func (h *HealthHandler) Healthz(c *gin.Context) {
	if errPing := h.svc.Ping(c.Request.Context()); errPing != nil {
		log.WithError(errPing).Warn("health check failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
