// README: Detected trip candidates, scan items and dismissal records.
package trip

import (
	"time"

	"tripalbum/internal/types"
)

const (
	// DefaultScanDays is how far back a scan looks for media.
	DefaultScanDays = 30
	// maxScanItems caps a scan across images and videos combined.
	maxScanItems = 1000
	// awayFromHomeMeters is the minimum distance from home for an item to count.
	awayFromHomeMeters = 5000.0
	// tripClusterRadiusMeters groups away-from-home items into trips.
	tripClusterRadiusMeters = 500.0
	// minTripSize is the smallest cluster reported as a trip.
	minTripSize = 3
	maxPreviewItems = 3

	cacheTTL     = 24 * time.Hour
	dismissalTTL = 7 * 24 * time.Hour

	unknownLocation = "unknown location"
	fallbackTitle   = "new trip"
)

// MediaWithLocation is one geo-tagged scan result. It is discarded after clustering.
type MediaWithLocation struct {
	ID       types.ID
	Filename string
	Point    types.Point
	TakenAt  time.Time
	IsVideo  bool
}

type DetectedTrip struct {
	ID             types.ID
	Location       string
	Point          types.Point
	StartDate      time.Time
	EndDate        time.Time
	MediaIDs       []types.ID
	MediaCount     int
	PhotoCount     int
	VideoCount     int
	PreviewIDs     []types.ID
	SuggestedTitle string
}

type Dismissal struct {
	TripID      types.ID
	DismissedAt time.Time
}

// Active reports whether the dismissal still suppresses its trip at now.
func (d Dismissal) Active(now time.Time) bool {
	return now.Sub(d.DismissedAt) < dismissalTTL
}
