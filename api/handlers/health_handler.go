package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/url-relay-go/internal/app"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	relay   *app.RelayService
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(relay *app.RelayService, version string) *HealthHandler {
	return &HealthHandler{
		relay:   relay,
		version: version,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Active  int    `json:"active"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: h.version,
		Active:  len(h.relay.ActiveTasks()),
	})
}

// Ready handles GET /ready. The journal must answer a stats query.
func (h *HealthHandler) Ready(c *gin.Context) {
	if _, err := h.relay.Stats(0); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "journal unavailable",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
