// README: Home location store backed by PostgreSQL.
package location

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tripalbum/internal/types"
)

var ErrNotFound = errors.New("home location not set")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) GetHome(ctx context.Context, userID types.ID) (*HomeLocation, error) {
	row := s.db.QueryRow(ctx, `
		SELECT lat, lng, address, is_auto_detected, updated_at
		FROM home_locations
		WHERE user_id = $1`, string(userID),
	)

	var h HomeLocation
	err := row.Scan(&h.Point.Lat, &h.Point.Lng, &h.Address, &h.IsAutoDetected, &h.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// SaveHome upserts the user's home, overwriting any previous value.
func (s *Store) SaveHome(ctx context.Context, userID types.ID, h HomeLocation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO home_locations (user_id, lat, lng, address, is_auto_detected, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET lat = EXCLUDED.lat,
		    lng = EXCLUDED.lng,
		    address = EXCLUDED.address,
		    is_auto_detected = EXCLUDED.is_auto_detected,
		    updated_at = EXCLUDED.updated_at`,
		string(userID),
		h.Point.Lat, h.Point.Lng,
		h.Address,
		h.IsAutoDetected,
		h.UpdatedAt,
	)
	return err
}
