// README: Trip service caches detected trips for 24h and filters out dismissed ones.
package trip

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tripalbum/internal/config"
	"tripalbum/internal/modules/album"
	"tripalbum/internal/modules/location"
	"tripalbum/internal/types"
)

var (
	ErrTripNotFound = errors.New("trip not found")
	ErrBadRequest   = errors.New("bad request")
)

// exclusionFetchLimit bounds concurrent album media listings.
const exclusionFetchLimit = 4

type TripDetector interface {
	Detect(ctx context.Context, home *location.HomeLocation, excluded map[string]struct{}, days int) ([]DetectedTrip, error)
}

type AlbumCatalog interface {
	ListAlbums(ctx context.Context, userID types.ID) ([]album.Album, error)
	ListMedia(ctx context.Context, albumID types.ID) ([]album.Media, error)
}

type HomeService interface {
	Get(ctx context.Context, userID types.ID) (*location.HomeLocation, error)
	SetHome(ctx context.Context, userID types.ID, lat, lng float64) (*location.HomeLocation, error)
}

type DismissalStore interface {
	Dismiss(ctx context.Context, userID, tripID types.ID, at time.Time) error
	Active(ctx context.Context, userID types.ID, now time.Time) (map[types.ID]struct{}, error)
	PurgeExpired(ctx context.Context, userID types.ID, now time.Time) error
	SetLastScan(ctx context.Context, userID types.ID, at time.Time) error
	LastScan(ctx context.Context, userID types.ID) (time.Time, bool, error)
}

type ServiceDeps struct {
	UserID   types.ID
	Detector TripDetector
	Albums   AlbumCatalog
	Homes    HomeService
	Store    DismissalStore
	Config   config.TripsConfig
	Log      *zap.Logger
}

// Service owns the detection cache of one library owner.
type Service struct {
	userID   types.ID
	detector TripDetector
	albums   AlbumCatalog
	homes    HomeService
	store    DismissalStore
	cfg      config.TripsConfig
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	cached   []DetectedTrip
	cachedAt time.Time
	valid    bool

	// generation is bumped by every recompute start and every invalidation. A
	// recompute stores its result only if the counter still holds its ticket.
	generation uint64
}

func NewService(deps ServiceDeps) *Service {
	return &Service{
		userID:   deps.UserID,
		detector: deps.Detector,
		albums:   deps.Albums,
		homes:    deps.Homes,
		store:    deps.Store,
		cfg:      deps.Config,
		log:      deps.Log,
		now:      time.Now,
	}
}

// DetectTrips returns the current trip candidates minus active dismissals. A
// cached result younger than 24h is reused unless forceRefresh is set.
func (s *Service) DetectTrips(ctx context.Context, forceRefresh bool) ([]DetectedTrip, error) {
	if !forceRefresh {
		if trips, ok := s.cachedTrips(s.now()); ok {
			return s.withoutDismissed(ctx, trips)
		}
	}

	// Each recompute takes a ticket; only the latest one started may store its
	// result, and any invalidation in between also voids it.
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	if err := s.store.PurgeExpired(ctx, s.userID, s.now()); err != nil {
		if isCancellation(err) {
			return nil, err
		}
		s.log.Warn("dismissal purge failed", zap.Error(err))
	}

	home, err := s.homes.Get(ctx, s.userID)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		s.log.Warn("home lookup failed, falling back to auto-detection", zap.Error(err))
		home = nil
	}

	excluded := s.exclusionSet(ctx)

	trips, err := s.detector.Detect(ctx, home, excluded, s.cfg.ScanDays)
	if err != nil {
		return nil, err
	}

	scannedAt := s.now()
	s.mu.Lock()
	if s.generation == gen {
		s.cached = trips
		s.cachedAt = scannedAt
		s.valid = true
	}
	s.mu.Unlock()

	if err := s.store.SetLastScan(ctx, s.userID, scannedAt); err != nil {
		s.log.Warn("recording last scan time failed", zap.Error(err))
	}
	return s.withoutDismissed(ctx, trips)
}

func (s *Service) cachedTrips(now time.Time) ([]DetectedTrip, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.valid || now.Sub(s.cachedAt) >= cacheTTL {
		return nil, false
	}
	out := make([]DetectedTrip, len(s.cached))
	copy(out, s.cached)
	return out, true
}

func (s *Service) withoutDismissed(ctx context.Context, trips []DetectedTrip) ([]DetectedTrip, error) {
	active, err := s.store.Active(ctx, s.userID, s.now())
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		s.log.Warn("dismissal lookup failed", zap.Error(err))
		return trips, nil
	}
	out := make([]DetectedTrip, 0, len(trips))
	for _, t := range trips {
		if _, dismissed := active[t.ID]; dismissed {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// exclusionSet collects the filenames of every media item already in one of
// the user's albums. Any fetch error yields an empty set.
func (s *Service) exclusionSet(ctx context.Context) map[string]struct{} {
	albums, err := s.albums.ListAlbums(ctx, s.userID)
	if err != nil {
		s.log.Warn("listing albums for exclusion failed", zap.Error(err))
		return map[string]struct{}{}
	}

	var mu sync.Mutex
	set := make(map[string]struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(exclusionFetchLimit)
	for _, a := range albums {
		albumID := a.ID
		g.Go(func() error {
			items, err := s.albums.ListMedia(gctx, albumID)
			if err != nil {
				return err
			}
			mu.Lock()
			for _, m := range items {
				set[m.OriginalFilename] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.log.Warn("listing album media for exclusion failed", zap.Error(err))
		return map[string]struct{}{}
	}
	return set
}

// DismissTrip suppresses id for seven days. The cache is left alone; filtering
// happens when trips are read.
func (s *Service) DismissTrip(ctx context.Context, id types.ID) error {
	if id == "" {
		return ErrBadRequest
	}
	return s.store.Dismiss(ctx, s.userID, id, s.now())
}

// SetHomeLocation stores a manual home and drops the cache.
func (s *Service) SetHomeLocation(ctx context.Context, lat, lng float64) (*location.HomeLocation, error) {
	h, err := s.homes.SetHome(ctx, s.userID, lat, lng)
	if err != nil {
		return nil, err
	}
	s.InvalidateCache()
	return h, nil
}

func (s *Service) GetHomeLocation(ctx context.Context) (*location.HomeLocation, error) {
	return s.homes.Get(ctx, s.userID)
}

func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.cachedAt = time.Time{}
	s.valid = false
	s.generation++
}

// Trip returns a trip from the current, unexpired cache.
func (s *Service) Trip(id types.ID) (DetectedTrip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.valid && s.now().Sub(s.cachedAt) < cacheTTL {
		for _, t := range s.cached {
			if t.ID == id {
				return t, nil
			}
		}
	}
	return DetectedTrip{}, ErrTripNotFound
}

// RemoveTrip drops one trip from the cache, e.g. after it became an album.
func (s *Service) RemoveTrip(id types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.cached[:0:0]
	for _, t := range s.cached {
		if t.ID != id {
			kept = append(kept, t)
		}
	}
	s.cached = kept
}

func (s *Service) LastScan(ctx context.Context) (time.Time, bool, error) {
	return s.store.LastScan(ctx, s.userID)
}

func (s *Service) UserID() types.ID { return s.userID }

// RunScheduler recomputes the cache in the background once it has expired.
func (s *Service) RunScheduler(ctx context.Context) {
	minutes := s.cfg.RefreshMinutes
	if minutes <= 0 {
		minutes = 60
	}
	ticker := time.NewTicker(time.Duration(minutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.DetectTrips(ctx, false); err != nil && !isCancellation(err) {
				s.log.Error("scheduled trip detection failed", zap.Error(err))
			}
		}
	}
}
