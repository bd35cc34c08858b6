// README: Location service resolves, stores and infers the user's home location.
package location

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tripalbum/internal/types"
)

// Geocoder turns a coordinate into a human readable address. Callers treat any
// error as "no address".
type Geocoder interface {
	AddressFor(ctx context.Context, lat, lng float64) (string, error)
}

type HomeStore interface {
	GetHome(ctx context.Context, userID types.ID) (*HomeLocation, error)
	SaveHome(ctx context.Context, userID types.ID, h HomeLocation) error
}

type Service struct {
	store    HomeStore
	geocoder Geocoder
	log      *zap.Logger
	now      func() time.Time
}

func NewService(store HomeStore, geocoder Geocoder, log *zap.Logger) *Service {
	return &Service{store: store, geocoder: geocoder, log: log, now: time.Now}
}

// Get returns the persisted home, or nil when none has been stored.
func (s *Service) Get(ctx context.Context, userID types.ID) (*HomeLocation, error) {
	h, err := s.store.GetHome(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// SetHome reverse-geocodes the coordinate on a best-effort basis and persists it
// as a manually chosen home.
func (s *Service) SetHome(ctx context.Context, userID types.ID, lat, lng float64) (*HomeLocation, error) {
	h := HomeLocation{
		Point:          types.Point{Lat: lat, Lng: lng},
		IsAutoDetected: false,
		UpdatedAt:      s.now(),
	}
	if s.geocoder != nil {
		addr, err := s.geocoder.AddressFor(ctx, lat, lng)
		switch {
		case err == nil && addr != "":
			h.Address = &addr
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.log.Warn("home address lookup failed", zap.Float64("lat", lat), zap.Float64("lng", lng), zap.Error(err))
		}
	}
	if err := s.store.SaveHome(ctx, userID, h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Resolve returns the persisted home for userID or, when none is stored, the
// home inferred from points.
func (s *Service) Resolve(ctx context.Context, userID types.ID, points []types.Point) (*HomeLocation, error) {
	stored, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return ResolveHome(stored, points), nil
}

// ResolveHome returns stored when it is set. Otherwise it clusters points at a
// 1 km radius and returns the centre of the largest cluster, flagged as
// auto-detected. Nothing is persisted. It returns nil when points is empty.
func ResolveHome(stored *HomeLocation, points []types.Point) *HomeLocation {
	if stored != nil {
		return stored
	}
	clusters := ClusterByRadius(points,
		func(p types.Point) types.Point { return p },
		func(types.Point) time.Time { return time.Time{} },
		homeClusterRadiusMeters,
	)
	best := Largest(clusters)
	if best < 0 {
		return nil
	}
	return &HomeLocation{Point: clusters[best].Center, IsAutoDetected: true}
}
