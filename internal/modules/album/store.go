// README: Album store backed by PostgreSQL.
package album

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripalbum/internal/types"
)

var (
	ErrNotFound    = errors.New("album not found")
	ErrBadRequest  = errors.New("bad request")
	ErrUploadEmpty = errors.New("media reference has no filename")
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// ListAlbums returns the user's albums, newest first.
func (s *Store) ListAlbums(ctx context.Context, userID types.ID) ([]Album, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, title, location, lat, lng, start_date, end_date, visibility, created_at
		FROM albums
		WHERE user_id = $1
		ORDER BY created_at DESC`, string(userID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Album
	for rows.Next() {
		var a Album
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.Title, &a.Location, &a.Lat, &a.Lng,
			&a.StartDate, &a.EndDate, &a.Visibility, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Album, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, user_id, title, location, lat, lng, start_date, end_date, visibility, created_at
		FROM albums
		WHERE id = $1`, string(id),
	)
	var a Album
	err := row.Scan(
		&a.ID, &a.UserID, &a.Title, &a.Location, &a.Lat, &a.Lng,
		&a.StartDate, &a.EndDate, &a.Visibility, &a.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) ListMedia(ctx context.Context, albumID types.ID) ([]Media, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, album_id, original_filename, source_path, is_video, created_at
		FROM album_media
		WHERE album_id = $1
		ORDER BY created_at`, string(albumID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Media
	for rows.Next() {
		var m Media
		if err := rows.Scan(&m.ID, &m.AlbumID, &m.OriginalFilename, &m.SourcePath, &m.IsVideo, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) CreateAlbum(ctx context.Context, spec CreateSpec) (types.ID, error) {
	if spec.UserID == "" || spec.Title == "" {
		return "", ErrBadRequest
	}
	if spec.Visibility == "" {
		spec.Visibility = VisibilityPrivate
	}
	var lat, lng *float64
	if spec.Point != nil {
		lat, lng = &spec.Point.Lat, &spec.Point.Lng
	}

	id := types.ID(uuid.NewString())
	_, err := s.db.Exec(ctx, `
		INSERT INTO albums (
			id, user_id, title, location, lat, lng,
			start_date, end_date, visibility, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10
		)`,
		string(id),
		string(spec.UserID),
		spec.Title,
		spec.Location,
		lat, lng,
		spec.StartDate, spec.EndDate,
		string(spec.Visibility),
		time.Now(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// UploadMedia attaches ref to the album. The file itself stays where it is;
// only its reference and original filename are recorded.
func (s *Store) UploadMedia(ctx context.Context, albumID types.ID, ref MediaRef) error {
	if ref.Filename == "" {
		return ErrUploadEmpty
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO album_media (id, album_id, original_filename, source_path, is_video, created_at)
		SELECT $1, id, $3, $4, $5, $6 FROM albums WHERE id = $2`,
		uuid.NewString(),
		string(albumID),
		ref.Filename,
		ref.Path,
		ref.IsVideo,
		time.Now(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
