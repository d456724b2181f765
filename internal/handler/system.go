package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheck 健康检查接口
func (h *Handlers) HealthCheck(c *gin.Context) {
	status := gin.H{"status": "healthy"}
	if h.DB != nil {
		sqlDB, err := h.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			// the alert registry keeps working without the responder directory
			status["status"] = "degraded"
			status["database"] = err.Error()
		}
	}
	if h.Alerts != nil {
		status["alerts"] = h.Alerts.Store().Len()
	}
	if h.WS != nil {
		status["websocketConnections"] = h.WS.GetConnectionCount()
	}
	if h.SSE != nil {
		status["sseClients"] = h.SSE.ClientCount()
	}
	c.JSON(http.StatusOK, status)
}
