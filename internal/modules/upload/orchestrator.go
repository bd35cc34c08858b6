// README: Orchestrator turns a detected trip into a private album, uploading items one at a time.
package upload

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tripalbum/internal/modules/album"
	"tripalbum/internal/modules/trip"
	"tripalbum/internal/types"
)

var ErrAlbumCreate = errors.New("album creation failed")

// uploadSlot serializes item uploads across every Orchestrator in the process.
var uploadSlot = make(chan struct{}, 1)

type Orchestrator struct {
	userID types.ID
	albums AlbumCreator
	media  MediaSource
	trips  TripCache
	log    *zap.Logger
}

func NewOrchestrator(userID types.ID, albums AlbumCreator, media MediaSource, trips TripCache, log *zap.Logger) *Orchestrator {
	return &Orchestrator{userID: userID, albums: albums, media: media, trips: trips, log: log}
}

// CreateAlbumFromTrip creates a private album for t and uploads its media in
// order. Item failures are counted and never abort the batch. Cancellation
// returns ctx.Err() at once and leaves the album partially filled.
func (o *Orchestrator) CreateAlbumFromTrip(ctx context.Context, t trip.DetectedTrip, title string, onProgress ProgressFunc) (Result, error) {
	if title == "" {
		title = t.SuggestedTitle
	}
	location := t.Location
	start, end := t.StartDate, t.EndDate
	spec := album.CreateSpec{
		UserID:     o.userID,
		Title:      title,
		Location:   &location,
		Point:      &types.Point{Lat: t.Point.Lat, Lng: t.Point.Lng},
		StartDate:  &start,
		EndDate:    &end,
		Visibility: album.VisibilityPrivate,
	}

	albumID, err := o.albums.CreateAlbum(ctx, spec)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, fmt.Errorf("%w: %w", ErrAlbumCreate, err)
	}

	res := Result{AlbumID: albumID, Total: len(t.MediaIDs)}
	for i, id := range t.MediaIDs {
		if err := acquire(ctx); err != nil {
			o.log.Info("album upload cancelled",
				zap.String("album_id", string(albumID)),
				zap.Int("attempted", i),
				zap.Int("total", res.Total),
			)
			return res, err
		}
		err := o.uploadOne(ctx, albumID, id)
		release()

		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Failed++
			o.log.Warn("media upload failed",
				zap.String("album_id", string(albumID)),
				zap.String("media_id", string(id)),
				zap.Error(err),
			)
		} else {
			res.Uploaded++
		}
		if onProgress != nil {
			onProgress(i+1, res.Total)
		}
	}

	if o.trips != nil {
		o.trips.RemoveTrip(t.ID)
	}
	o.log.Info("album created from trip",
		zap.String("album_id", string(albumID)),
		zap.String("trip_id", string(t.ID)),
		zap.Int("uploaded", res.Uploaded),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (o *Orchestrator) uploadOne(ctx context.Context, albumID, mediaID types.ID) error {
	ref, err := o.media.Ref(ctx, mediaID)
	if err != nil {
		return err
	}
	return o.albums.UploadMedia(ctx, albumID, ref)
}

func acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case uploadSlot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func release() { <-uploadSlot }
