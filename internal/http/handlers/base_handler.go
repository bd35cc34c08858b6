// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"tripalbum/internal/modules/album"
	"tripalbum/internal/modules/recommendation"
	"tripalbum/internal/modules/trip"
	"tripalbum/internal/modules/upload"
)

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// isValidID accepts uuid-like ids: letters, digits and dashes, at most 64 chars.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trip.ErrBadRequest),
		errors.Is(err, recommendation.ErrBadRequest),
		errors.Is(err, album.ErrBadRequest):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrTripNotFound), errors.Is(err, album.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrDetectionFailed),
		errors.Is(err, upload.ErrAlbumCreate),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		writeJSON(c, http.StatusServiceUnavailable, errorResponse{Error: "temporarily unavailable, try again", Retryable: true})
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
