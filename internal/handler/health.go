package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// OnlineCounter reports how many users are online across replicas.
type OnlineCounter interface {
	OnlineCount(ctx context.Context) (int64, error)
}

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	online OnlineCounter
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(online OnlineCounter) *HealthHandler {
	return &HealthHandler{online: online}
}

// Health handles GET /health. A failing presence store degrades the count,
// not the probe.
func (h *HealthHandler) Health(c *gin.Context) {
	count, err := h.online.OnlineCount(c.Request.Context())
	if err != nil {
		respondJSON(c, http.StatusOK, gin.H{"status": "degraded", "onlineUsers": nil})
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok", "onlineUsers": count})
}
