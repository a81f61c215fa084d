package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is reported by the health endpoint
var Version = "1.0.0"

// ReaperStatus reports whether artifact expiry is scheduled
type ReaperStatus interface {
	IsRunning() bool
}

// HealthHandler handles health check requests
type HealthHandler struct {
	reaper ReaperStatus
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(reaper ReaperStatus) *HealthHandler {
	return &HealthHandler{
		reaper: reaper,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
	Reaper  struct {
		Running bool `json:"running"`
	} `json:"reaper"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		OK:      true,
		Version: Version,
	}
	response.Reaper.Running = h.reaper != nil && h.reaper.IsRunning()

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if h.reaper == nil || !h.reaper.IsRunning() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ok":     false,
			"reason": "artifact reaper not running",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
