// README: Trip handlers: list detected trips, dismiss, drop the cache, turn a trip into an album.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"tripalbum/internal/modules/trip"
	"tripalbum/internal/types"
)

type TripHandler struct {
	trips  TripService
	albums AlbumBuilder
	log    *zap.Logger
}

func NewTripHandler(trips TripService, albums AlbumBuilder, log *zap.Logger) *TripHandler {
	return &TripHandler{trips: trips, albums: albums, log: log}
}

type tripResponse struct {
	ID             types.ID    `json:"id"`
	Location       string      `json:"location"`
	Point          types.Point `json:"point"`
	StartDate      time.Time   `json:"start_date"`
	EndDate        time.Time   `json:"end_date"`
	MediaIDs       []types.ID  `json:"media_ids"`
	MediaCount     int         `json:"media_count"`
	PhotoCount     int         `json:"photo_count"`
	VideoCount     int         `json:"video_count"`
	PreviewIDs     []types.ID  `json:"preview_ids"`
	SuggestedTitle string      `json:"suggested_title"`
}

func toTripResponse(t trip.DetectedTrip) tripResponse {
	return tripResponse{
		ID:             t.ID,
		Location:       t.Location,
		Point:          t.Point,
		StartDate:      t.StartDate,
		EndDate:        t.EndDate,
		MediaIDs:       t.MediaIDs,
		MediaCount:     t.MediaCount,
		PhotoCount:     t.PhotoCount,
		VideoCount:     t.VideoCount,
		PreviewIDs:     t.PreviewIDs,
		SuggestedTitle: t.SuggestedTitle,
	}
}

// List handles GET /api/trips?refresh=true|false.
func (h *TripHandler) List(c *gin.Context) {
	refresh := false
	if v := c.Query("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(c, http.StatusBadRequest, "refresh must be a boolean")
			return
		}
		refresh = b
	}

	trips, err := h.trips.DetectTrips(c.Request.Context(), refresh)
	if err != nil {
		h.log.Warn("trip detection failed", zap.Error(err))
		writeServiceError(c, err)
		return
	}
	out := make([]tripResponse, 0, len(trips))
	for _, t := range trips {
		out = append(out, toTripResponse(t))
	}

	resp := gin.H{"trips": out}
	if last, ok, err := h.trips.LastScan(c.Request.Context()); err == nil && ok {
		resp["last_scan_at"] = last
	}
	writeJSON(c, http.StatusOK, resp)
}

func (h *TripHandler) Dismiss(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	if err := h.trips.DismissTrip(c.Request.Context(), types.ID(id)); err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "dismissed"})
}

func (h *TripHandler) InvalidateCache(c *gin.Context) {
	h.trips.InvalidateCache()
	c.Status(http.StatusNoContent)
}

type createAlbumRequest struct {
	Title string `json:"title" binding:"max=200"`
}

// CreateAlbum handles POST /api/trips/:id/album. The trip must be in the
// current detection cache.
func (h *TripHandler) CreateAlbum(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	var req createAlbumRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid body")
			return
		}
	}

	t, err := h.trips.Trip(types.ID(id))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	res, err := h.albums.CreateAlbumFromTrip(c.Request.Context(), t, req.Title, func(attempted, total int) {
		h.log.Debug("album upload progress",
			zap.String("trip_id", id),
			zap.Int("attempted", attempted),
			zap.Int("total", total),
		)
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, res)
}
