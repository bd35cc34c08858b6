// README: Upload orchestration types: collaborators, progress callback and result counts.
package upload

import (
	"context"

	"tripalbum/internal/modules/album"
	"tripalbum/internal/types"
)

type AlbumCreator interface {
	CreateAlbum(ctx context.Context, spec album.CreateSpec) (types.ID, error)
	UploadMedia(ctx context.Context, albumID types.ID, ref album.MediaRef) error
}

// MediaSource resolves a scanned media id to something uploadable.
type MediaSource interface {
	Ref(ctx context.Context, id types.ID) (album.MediaRef, error)
}

type TripCache interface {
	RemoveTrip(id types.ID)
}

// ProgressFunc is called after every attempted item with the number of items
// attempted so far and the total.
type ProgressFunc func(attempted, total int)

// Result summarises one album creation. Failed items are counted, not listed.
type Result struct {
	AlbumID  types.ID `json:"album_id"`
	Uploaded int      `json:"uploaded"`
	Failed   int      `json:"failed"`
	Total    int      `json:"total"`
}
