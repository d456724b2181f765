package handlers

import (
	"net/http"
	"strings"

	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/middleware"
	"GreenCorridor/pkg/response"

	"github.com/gin-gonic/gin"
)

var (
	errDriverNameRequired = errors.Validationf("driverName is required for driver clients")
	errUnknownRole        = errors.Validationf("role must be responder or driver")
)

func (h *Handlers) handleCreateAlert(c *gin.Context) {
	var in models.AlertInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	a, err := h.Alerts.CreateAlert(in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"alert": a})
}

// handleListAlerts serves driver polling (?driverName=) and the responder dashboard.
func (h *Handlers) handleListAlerts(c *gin.Context) {
	alerts := h.Alerts.ListAlerts(strings.TrimSpace(c.Query("driverName")))
	response.Success(c, http.StatusOK, gin.H{"count": len(alerts), "alerts": alerts})
}

func (h *Handlers) handleGetAlert(c *gin.Context) {
	id, err := models.ParseAlertID(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	a, err := h.Alerts.GetAlert(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"alert": a})
}

func (h *Handlers) handleAlertStats(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"stats": h.Alerts.Stats()})
}

func (h *Handlers) handleRespond(c *gin.Context) {
	var req models.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.Alerts.Respond(c.Request.Context(), req, middleware.Lang(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	purged := res.Purged
	if purged == nil {
		purged = []models.AlertID{}
	}
	response.Success(c, http.StatusOK, gin.H{"alert": res.Alert, "purged": purged})
}

func (h *Handlers) handleProximity(c *gin.Context) {
	var req models.ProximityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.Alerts.Proximity(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	body := gin.H{"created": res.Created, "skipped": res.Skipped}
	if res.CooldownRemaining > 0 {
		body["cooldownRemainingSeconds"] = int(res.CooldownRemaining.Seconds())
	}
	response.Success(c, http.StatusOK, body)
}

func (h *Handlers) handleDeleteAlert(c *gin.Context) {
	id, err := models.ParseAlertID(c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	a, err := h.Alerts.DeleteAlert(id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"alert": a})
}

func (h *Handlers) handleClearAlerts(c *gin.Context) {
	n := h.Alerts.ClearAlerts()
	response.Success(c, http.StatusOK, gin.H{"message": "all alerts cleared", "cleared": n})
}

// handleEvents streams broadcast events over SSE for clients that cannot hold a websocket.
func (h *Handlers) handleEvents(c *gin.Context) {
	groups, err := pushGroups(c.Query("role"), c.Query("driverName"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.SSE.Serve(c, groups)
}
