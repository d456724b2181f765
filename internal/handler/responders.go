package handlers

import (
	"net/http"

	"GreenCorridor/internal/models"
	"GreenCorridor/pkg/errors"
	"GreenCorridor/pkg/geo"
	"GreenCorridor/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

func (h *Handlers) handleUpdateLocation(c *gin.Context) {
	var u models.LocationUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		response.Fail(c, http.StatusBadRequest, "invalid request body")
		return
	}
	r, err := h.Alerts.UpsertResponder(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"responder": r})
}

// handleListResponders lists active responders; ?route=<encoded polyline>
// narrows the list to the corridor along that route.
func (h *Handlers) handleListResponders(c *gin.Context) {
	var (
		list []models.Responder
		err  error
	)
	if encoded := c.Query("route"); encoded != "" {
		list, err = h.respondersAlongRoute(c, encoded)
	} else {
		list, err = h.Alerts.ListResponders(c.Request.Context(), c.Query("area"))
	}
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"count": len(list), "responders": list})
}

func (h *Handlers) respondersAlongRoute(c *gin.Context, encoded string) ([]models.Responder, error) {
	route, err := geo.DecodePolyline(encoded)
	if err != nil {
		return nil, errors.Validationf("invalid route polyline")
	}
	var buffer float64
	if raw := c.Query("bufferMeters"); raw != "" {
		if buffer, err = cast.ToFloat64E(raw); err != nil || buffer < 0 {
			return nil, errors.Validationf("bufferMeters must be a non-negative number")
		}
	}
	return h.Alerts.RespondersAlongRoute(c.Request.Context(), c.Query("area"), route, buffer)
}

func (h *Handlers) handleGetResponder(c *gin.Context) {
	r, err := h.Alerts.GetResponder(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"responder": r})
}

func (h *Handlers) handleDeactivateResponder(c *gin.Context) {
	if err := h.Alerts.DeactivateResponder(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"message": "responder deactivated"})
}
