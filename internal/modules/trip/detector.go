// README: Trip detector scans media, drops home-area items, clusters and assembles trips.
package trip

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tripalbum/internal/media"
	"tripalbum/internal/modules/location"
	"tripalbum/internal/types"
)

var ErrDetectionFailed = errors.New("trip detection failed")

type MediaIndex interface {
	QueryGeoTagged(ctx context.Context, since time.Time, kind media.Kind) ([]media.Entry, error)
	ExtractGPS(path string) (*types.Point, error)
}

type Detector struct {
	index    MediaIndex
	geocoder location.Geocoder
	log      *zap.Logger
	now      func() time.Time
	newID    func() types.ID
}

func NewDetector(index MediaIndex, geocoder location.Geocoder, log *zap.Logger) *Detector {
	return &Detector{
		index:    index,
		geocoder: geocoder,
		log:      log,
		now:      time.Now,
		newID:    func() types.ID { return types.ID(uuid.NewString()) },
	}
}

// Detect runs the detection pipeline. An empty result is a success, not an
// error. Cancellation is returned as is; every other failure, panics included,
// becomes ErrDetectionFailed.
func (d *Detector) Detect(ctx context.Context, home *location.HomeLocation, excluded map[string]struct{}, days int) (trips []DetectedTrip, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("trip detection panicked", zap.Any("panic", r))
			trips, err = nil, fmt.Errorf("%w: panic: %v", ErrDetectionFailed, r)
		}
	}()

	trips, err = d.detect(ctx, home, excluded, days)
	if err != nil {
		if isCancellation(err) {
			return nil, err
		}
		d.log.Error("trip detection failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrDetectionFailed, err)
	}
	return trips, nil
}

func (d *Detector) detect(ctx context.Context, home *location.HomeLocation, excluded map[string]struct{}, days int) ([]DetectedTrip, error) {
	if days <= 0 {
		days = DefaultScanDays
	}
	scanned, err := d.scan(ctx, d.now().AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	if len(scanned) == 0 {
		return []DetectedTrip{}, nil
	}

	candidates := make([]MediaWithLocation, 0, len(scanned))
	for _, m := range scanned {
		if _, skip := excluded[m.Filename]; skip {
			continue
		}
		candidates = append(candidates, m)
	}
	if len(candidates) == 0 {
		return []DetectedTrip{}, nil
	}

	points := make([]types.Point, len(scanned))
	for i, m := range scanned {
		points[i] = m.Point
	}
	resolved := location.ResolveHome(home, points)
	if resolved == nil {
		return []DetectedTrip{}, nil
	}

	away := candidates[:0]
	for _, m := range candidates {
		if location.DistanceMeters(resolved.Point, m.Point) >= awayFromHomeMeters {
			away = append(away, m)
		}
	}
	if len(away) == 0 {
		return []DetectedTrip{}, nil
	}

	clusters := location.ClusterByRadius(away,
		func(m MediaWithLocation) types.Point { return m.Point },
		func(m MediaWithLocation) time.Time { return m.TakenAt },
		tripClusterRadiusMeters,
	)

	trips := []DetectedTrip{}
	for _, c := range clusters {
		if c.Size() < minTripSize {
			continue
		}
		t, err := d.assemble(ctx, c)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}

	d.log.Info("trip detection complete",
		zap.Int("scanned", len(scanned)),
		zap.Int("away", len(away)),
		zap.Int("clusters", len(clusters)),
		zap.Int("trips", len(trips)),
		zap.Bool("home_auto_detected", resolved.IsAutoDetected),
	)
	return trips, nil
}

// scan returns geo-tagged images and videos taken since the cutoff, newest
// first and capped at maxScanItems.
func (d *Detector) scan(ctx context.Context, since time.Time) ([]MediaWithLocation, error) {
	type entry struct {
		media.Entry
		isVideo bool
	}
	var entries []entry
	for _, kind := range []media.Kind{media.KindImage, media.KindVideo} {
		found, err := d.index.QueryGeoTagged(ctx, since, kind)
		if err != nil {
			return nil, err
		}
		for _, e := range found {
			entries = append(entries, entry{Entry: e, isVideo: kind == media.KindVideo})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].TakenAt.After(entries[j].TakenAt) })
	if len(entries) > maxScanItems {
		entries = entries[:maxScanItems]
	}

	out := make([]MediaWithLocation, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pt, err := d.index.ExtractGPS(e.FilePath)
		if err != nil {
			d.log.Debug("skipping media without readable location", zap.String("path", e.FilePath), zap.Error(err))
			continue
		}
		if pt == nil {
			continue
		}
		out = append(out, MediaWithLocation{
			ID:       e.ID,
			Filename: e.DisplayName,
			Point:    *pt,
			TakenAt:  e.TakenAt,
			IsVideo:  e.isVideo,
		})
	}
	return out, nil
}

func (d *Detector) assemble(ctx context.Context, c location.Cluster[MediaWithLocation]) (DetectedTrip, error) {
	if err := ctx.Err(); err != nil {
		return DetectedTrip{}, err
	}

	place, title := unknownLocation, fallbackTitle
	if d.geocoder != nil {
		addr, err := d.geocoder.AddressFor(ctx, c.Center.Lat, c.Center.Lng)
		switch {
		case err != nil && ctx.Err() != nil:
			return DetectedTrip{}, ctx.Err()
		case err != nil:
			d.log.Warn("trip geocode failed", zap.Float64("lat", c.Center.Lat), zap.Float64("lng", c.Center.Lng), zap.Error(err))
		case addr != "":
			place, title = addr, addr+" trip"
		}
	}

	t := DetectedTrip{
		ID:             d.newID(),
		Location:       place,
		Point:          c.Center,
		StartDate:      c.Start,
		EndDate:        c.End,
		MediaIDs:       make([]types.ID, 0, c.Size()),
		MediaCount:     c.Size(),
		SuggestedTitle: title,
	}
	var photos, videos []types.ID
	for _, m := range c.Members {
		t.MediaIDs = append(t.MediaIDs, m.ID)
		if m.IsVideo {
			videos = append(videos, m.ID)
		} else {
			photos = append(photos, m.ID)
		}
	}
	t.PhotoCount, t.VideoCount = len(photos), len(videos)
	t.PreviewIDs = previewIDs(photos, videos)
	return t, nil
}

func previewIDs(photos, videos []types.ID) []types.ID {
	out := make([]types.ID, 0, maxPreviewItems)
	for _, group := range [][]types.ID{photos, videos} {
		for _, id := range group {
			if len(out) == maxPreviewItems {
				return out
			}
			out = append(out, id)
		}
	}
	return out
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
