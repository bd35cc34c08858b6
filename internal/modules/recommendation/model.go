// README: Recommendation request and response shapes for batch media analysis.
package recommendation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"tripalbum/internal/types"
)

const (
	// sameTripDays is the largest whole-day gap between two dated items of one trip.
	sameTripDays = 3
	// sameTripMeters is the largest distance between two located items of one
	// trip, and between a trip and an album it is added to.
	sameTripMeters  = 50_000.0
	maxPreviewNames = 3
)

type ItemType string

const (
	ItemNewTrip       ItemType = "NEW_TRIP"
	ItemAddToExisting ItemType = "ADD_TO_EXISTING"
)

// Timestamp accepts RFC 3339, a zone-less "2006-01-02T15:04:05", a bare date,
// or unix milliseconds. It is written back as RFC 3339.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] != '"' {
		ms, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			return fmt.Errorf("timestamp %s: %w", b, err)
		}
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp %q: unsupported format", s)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// MediaInfo is bare metadata about one item; no file is ever read.
type MediaInfo struct {
	Filename  string     `json:"filename" binding:"required"`
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	TakenAt   *Timestamp `json:"takenAt"`
}

func (m MediaInfo) point() (types.Point, bool) {
	if m.Latitude == nil || m.Longitude == nil {
		return types.Point{}, false
	}
	return types.Point{Lat: *m.Latitude, Lng: *m.Longitude}, true
}

type Item struct {
	Type             ItemType   `json:"type"`
	Location         *string    `json:"location"`
	Latitude         *float64   `json:"latitude"`
	Longitude        *float64   `json:"longitude"`
	StartDate        *Timestamp `json:"startDate"`
	EndDate          *Timestamp `json:"endDate"`
	MediaCount       int        `json:"mediaCount"`
	PreviewFilenames []string   `json:"previewFilenames"`
	TargetAlbumID    *types.ID  `json:"targetAlbumId"`
	TargetAlbumTitle *string    `json:"targetAlbumTitle"`
}

// group is one cluster of MediaInfo with its derived centre and date range.
type group struct {
	members []MediaInfo
	center  *types.Point
	start   *time.Time
	end     *time.Time
}
