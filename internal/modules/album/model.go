// README: Remote album aggregate and the media rows attached to it.
package album

import (
	"time"

	"tripalbum/internal/types"
)

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityFriends Visibility = "friends"
	VisibilityPublic  Visibility = "public"
)

type Album struct {
	ID         types.ID
	UserID     types.ID
	Title      string
	Location   *string
	Lat        *float64
	Lng        *float64
	StartDate  *time.Time
	EndDate    *time.Time
	Visibility Visibility
	CreatedAt  time.Time
}

// Point returns the album's stored coordinates, or nil when either is missing.
func (a Album) Point() *types.Point {
	if a.Lat == nil || a.Lng == nil {
		return nil
	}
	return &types.Point{Lat: *a.Lat, Lng: *a.Lng}
}

type Media struct {
	ID               types.ID
	AlbumID          types.ID
	OriginalFilename string
	SourcePath       string
	IsVideo          bool
	CreatedAt        time.Time
}

// CreateSpec describes an album to create.
type CreateSpec struct {
	UserID     types.ID
	Title      string
	Location   *string
	Point      *types.Point
	StartDate  *time.Time
	EndDate    *time.Time
	Visibility Visibility
}

// MediaRef points at a local media file to upload into an album.
type MediaRef struct {
	ID       types.ID
	Filename string
	Path     string
	IsVideo  bool
}
