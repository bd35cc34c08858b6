// README: Home location reference used as the "away from home" baseline.
package location

import (
	"time"

	"tripalbum/internal/types"
)

const (
	// homeClusterRadiusMeters groups recent media when inferring a home.
	homeClusterRadiusMeters = 1000.0
)

type HomeLocation struct {
	Point          types.Point
	Address        *string
	IsAutoDetected bool
	UpdatedAt      time.Time
}
