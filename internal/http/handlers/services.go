// README: Service contracts the handlers depend on.
package handlers

import (
	"context"
	"time"

	"tripalbum/internal/modules/location"
	"tripalbum/internal/modules/recommendation"
	"tripalbum/internal/modules/trip"
	"tripalbum/internal/modules/upload"
	"tripalbum/internal/types"
)

// TripService is satisfied by *trip.Service.
type TripService interface {
	DetectTrips(ctx context.Context, forceRefresh bool) ([]trip.DetectedTrip, error)
	DismissTrip(ctx context.Context, id types.ID) error
	InvalidateCache()
	Trip(id types.ID) (trip.DetectedTrip, error)
	LastScan(ctx context.Context) (time.Time, bool, error)
	GetHomeLocation(ctx context.Context) (*location.HomeLocation, error)
	SetHomeLocation(ctx context.Context, lat, lng float64) (*location.HomeLocation, error)
}

// AlbumBuilder is satisfied by *upload.Orchestrator.
type AlbumBuilder interface {
	CreateAlbumFromTrip(ctx context.Context, t trip.DetectedTrip, title string, onProgress upload.ProgressFunc) (upload.Result, error)
}

// Analyzer is satisfied by *recommendation.Service.
type Analyzer interface {
	Analyze(ctx context.Context, userID types.ID, items []recommendation.MediaInfo) ([]recommendation.Item, error)
}
