// README: Home location handlers.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tripalbum/internal/modules/location"
)

type HomeHandler struct {
	trips TripService
}

func NewHomeHandler(trips TripService) *HomeHandler {
	return &HomeHandler{trips: trips}
}

type homeResponse struct {
	Lat            float64   `json:"lat"`
	Lng            float64   `json:"lng"`
	Address        *string   `json:"address"`
	IsAutoDetected bool      `json:"is_auto_detected"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func toHomeResponse(h *location.HomeLocation) homeResponse {
	return homeResponse{
		Lat:            h.Point.Lat,
		Lng:            h.Point.Lng,
		Address:        h.Address,
		IsAutoDetected: h.IsAutoDetected,
		UpdatedAt:      h.UpdatedAt,
	}
}

func (h *HomeHandler) Get(c *gin.Context) {
	home, err := h.trips.GetHomeLocation(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	if home == nil {
		writeError(c, http.StatusNotFound, "home location not set")
		return
	}
	writeJSON(c, http.StatusOK, toHomeResponse(home))
}

type setHomeRequest struct {
	Lat *float64 `json:"lat" binding:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" binding:"required,min=-180,max=180"`
}

func (h *HomeHandler) Set(c *gin.Context) {
	var req setHomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "lat and lng are required and must be in range")
		return
	}
	home, err := h.trips.SetHomeLocation(c.Request.Context(), *req.Lat, *req.Lng)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toHomeResponse(home))
}
