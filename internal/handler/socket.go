package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SocketServer upgrades a request to a realtime connection.
type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// SocketHandler exposes the realtime hub on GET /ws.
type SocketHandler struct {
	hub SocketServer
}

// NewSocketHandler creates a new SocketHandler.
func NewSocketHandler(hub SocketServer) *SocketHandler {
	return &SocketHandler{hub: hub}
}

// Serve handles GET /ws?user_id=
func (h *SocketHandler) Serve(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}
