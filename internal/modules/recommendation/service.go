// README: Recommendation service loads the caller's albums and runs Analyze.
package recommendation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tripalbum/internal/modules/album"
	"tripalbum/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type AlbumLister interface {
	ListAlbums(ctx context.Context, userID types.ID) ([]album.Album, error)
}

type Service struct {
	albums AlbumLister
	log    *zap.Logger
}

func NewService(albums AlbumLister, log *zap.Logger) *Service {
	return &Service{albums: albums, log: log}
}

// Analyze validates items and recommends one album action per cluster. An
// empty userID is matched against no albums.
func (s *Service) Analyze(ctx context.Context, userID types.ID, items []MediaInfo) ([]Item, error) {
	if err := validate(items); err != nil {
		return nil, err
	}

	var albums []album.Album
	if userID != "" {
		var err error
		albums, err = s.albums.ListAlbums(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list albums: %w", err)
		}
	}

	out := Analyze(items, albums)
	s.log.Debug("analyzed media batch",
		zap.String("user_id", string(userID)),
		zap.Int("items", len(items)),
		zap.Int("recommendations", len(out)),
		zap.Int("albums", len(albums)),
	)
	return out, nil
}

func validate(items []MediaInfo) error {
	for i, m := range items {
		if m.Filename == "" {
			return fmt.Errorf("%w: item %d has no filename", ErrBadRequest, i)
		}
		if (m.Latitude == nil) != (m.Longitude == nil) {
			return fmt.Errorf("%w: item %d needs both latitude and longitude", ErrBadRequest, i)
		}
		if m.Latitude != nil && (*m.Latitude < -90 || *m.Latitude > 90 || *m.Longitude < -180 || *m.Longitude > 180) {
			return fmt.Errorf("%w: item %d coordinate out of range", ErrBadRequest, i)
		}
	}
	return nil
}
