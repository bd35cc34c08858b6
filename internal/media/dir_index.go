// README: Filesystem media index; reads EXIF for photos and .gps sidecars for videos.
package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"

	"tripalbum/internal/modules/album"
	"tripalbum/internal/types"
)

// sidecarExt holds "lat,lng" for files whose container has no readable GPS tag.
const sidecarExt = ".gps"

// gpsMemoTTL bounds how long a coordinate seen during a scan is served
// without re-reading the file.
const gpsMemoTTL = 10 * time.Minute

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".heic": true, ".tif": true, ".tiff": true}
	videoExts = map[string]bool{".mp4": true, ".mov": true, ".m4v": true, ".3gp": true}
)

// DirIndex indexes a directory tree of photos and videos.
type DirIndex struct {
	root string
	log  *zap.Logger
	gps  *cache.Cache // types.Point by absolute path, filled during queries
}

func NewDirIndex(root string, log *zap.Logger) *DirIndex {
	return &DirIndex{root: root, log: log, gps: cache.New(gpsMemoTTL, 2*gpsMemoTTL)}
}

// QueryGeoTagged returns entries of kind taken at or after since that carry a
// location, newest first.
func (d *DirIndex) QueryGeoTagged(ctx context.Context, since time.Time, kind Kind) ([]Entry, error) {
	var out []Entry
	err := filepath.WalkDir(d.root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return d.walkErr(path, de, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if de.IsDir() || kindOf(path) != kind {
			return nil
		}

		takenAt, pt, ok := d.probe(path, kind)
		if !ok || takenAt.Before(since) {
			return nil
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}

		d.gps.Set(path, pt, cache.DefaultExpiration)

		out = append(out, Entry{
			ID:          types.ID(filepath.ToSlash(rel)),
			TakenAt:     takenAt,
			FilePath:    path,
			DisplayName: filepath.Base(path),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: scan %s: %w", ErrStorage, d.root, err)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].TakenAt.After(out[j].TakenAt) })
	d.log.Debug("media scan complete", zap.String("kind", kind.String()), zap.Int("entries", len(out)))
	return out, nil
}

// ExtractGPS returns the coordinate of the file at path, or nil when it has none.
func (d *DirIndex) ExtractGPS(path string) (*types.Point, error) {
	if v, ok := d.gps.Get(path); ok {
		pt := v.(types.Point)
		return &pt, nil
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	_, pt, ok := d.probe(path, kindOf(path))
	if !ok {
		return nil, nil
	}
	return &pt, nil
}

// walkErr decides whether a walk error aborts the scan. Only a failure on the
// root does; an unreadable subdirectory is skipped and an unreadable file ignored.
func (d *DirIndex) walkErr(path string, de fs.DirEntry, err error) error {
	if path == d.root || de == nil {
		return err
	}
	if de.IsDir() {
		d.log.Warn("skipping unreadable directory", zap.String("path", path), zap.Error(err))
		return fs.SkipDir
	}
	d.log.Warn("skipping unreadable file", zap.String("path", path), zap.Error(err))
	return nil
}

// Ref resolves a media id to an upload reference inside the library.
func (d *DirIndex) Ref(_ context.Context, id types.ID) (album.MediaRef, error) {
	rel := filepath.FromSlash(string(id))
	if !filepath.IsLocal(rel) {
		return album.MediaRef{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	path := filepath.Join(d.root, rel)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return album.MediaRef{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return album.MediaRef{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return album.MediaRef{
		ID:       id,
		Filename: filepath.Base(path),
		Path:     path,
		IsVideo:  kindOf(path) == KindVideo,
	}, nil
}

// probe reads the capture time and location of path. ok is false when the file
// carries no location.
func (d *DirIndex) probe(path string, kind Kind) (time.Time, types.Point, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, types.Point{}, false
	}
	takenAt := info.ModTime()

	if kind == KindImage {
		if t, pt, err := readExif(path); err == nil {
			if !t.IsZero() {
				takenAt = t
			}
			return takenAt, pt, true
		}
	}
	pt, err := readSidecar(path + sidecarExt)
	if err != nil {
		return time.Time{}, types.Point{}, false
	}
	return takenAt, pt, true
}

func readExif(path string) (time.Time, types.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, types.Point{}, err
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return time.Time{}, types.Point{}, err
	}
	lat, lng, err := x.LatLong()
	if err != nil {
		return time.Time{}, types.Point{}, err
	}
	t, _ := x.DateTime()
	return t, types.Point{Lat: lat, Lng: lng}, nil
}

func readSidecar(path string) (types.Point, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return types.Point{}, err
	}
	parts := strings.Split(strings.TrimSpace(string(raw)), ",")
	if len(parts) != 2 {
		return types.Point{}, fmt.Errorf("malformed sidecar %s", path)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return types.Point{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return types.Point{}, err
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return types.Point{}, fmt.Errorf("sidecar %s out of range", path)
	}
	return types.Point{Lat: lat, Lng: lng}, nil
}

func kindOf(path string) Kind {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExts[ext]:
		return KindImage
	case videoExts[ext]:
		return KindVideo
	default:
		return -1
	}
}
