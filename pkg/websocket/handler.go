package websocket

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// IdentityResolver derives the connecting client's identity from the request.
type IdentityResolver func(c *gin.Context) (Identity, error)

type Handler struct {
	hub     *Hub
	resolve IdentityResolver
}

func NewHandler(hub *Hub, resolve IdentityResolver) *Handler {
	return &Handler{hub: hub, resolve: resolve}
}

func RegisterRoutes(r gin.IRoutes, handler *Handler) {
	r.GET(RouteWebSocket, handler.HandleWebSocket)
	r.GET(RouteWebSocketStats, handler.GetStats)
	r.GET(RouteWebSocketHealth, handler.HealthCheck)
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	var id Identity
	if h.resolve != nil {
		var err error
		if id, err = h.resolve(c); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			return
		}
	}
	Serve(h.hub, c.Writer, c.Request, id)
}

func (h *Handler) GetStats(c *gin.Context) {
	h.hub.mu.RLock()
	groups := make(map[string]int, len(h.hub.groupConnections))
	for g, conns := range h.hub.groupConnections {
		groups[g] = len(conns)
	}
	h.hub.mu.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"total_connections":  h.hub.GetConnectionCount(),
		"max_connections":    h.hub.config.MaxConnections,
		"groups":             groups,
		"dropped":            h.hub.Dropped(),
		"heartbeat_interval": h.hub.config.HeartbeatInterval.String(),
		"drop_on_full":       h.hub.config.DropOnFull,
	})
}

func (h *Handler) HealthCheck(c *gin.Context) {
	if err := h.hub.ctx.Err(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "details": err.Error()})
		return
	}
	total := h.hub.GetConnectionCount()
	status := "healthy"
	if total >= h.hub.config.MaxConnections*9/10 {
		status = "warning"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":            status,
		"total_connections": total,
		"max_connections":   h.hub.config.MaxConnections,
		"timestamp":         time.Now().Unix(),
	})
}
