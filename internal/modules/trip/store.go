// README: Dismissal and last-scan store backed by Redis sorted sets and keys.
package trip

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"tripalbum/internal/types"
)

const (
	dismissedKeyPrefix = "trips:%s:dismissed"
	lastScanKeyPrefix  = "trips:%s:last_scan"
)

type Store struct {
	redis *redis.Client
}

func NewStore(redis *redis.Client) *Store {
	return &Store{redis: redis}
}

// Dismiss records the dismissal time of tripID, scored in unix milliseconds.
func (s *Store) Dismiss(ctx context.Context, userID, tripID types.ID, at time.Time) error {
	key := dismissedKey(userID)
	pipe := s.redis.Pipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: string(tripID)})
	// Every member is expired once the newest one is.
	pipe.Expire(ctx, key, dismissalTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Active returns the trip ids whose dismissal is younger than the dismissal TTL.
func (s *Store) Active(ctx context.Context, userID types.ID, now time.Time) (map[types.ID]struct{}, error) {
	zs, err := s.redis.ZRangeByScoreWithScores(ctx, dismissedKey(userID), activeRange(now)).Result()
	if err != nil {
		return nil, err
	}
	return activeFromScores(zs, now), nil
}

// PurgeExpired drops dismissals at or past the TTL boundary.
func (s *Store) PurgeExpired(ctx context.Context, userID types.ID, now time.Time) error {
	return s.redis.ZRemRangeByScore(ctx, dismissedKey(userID), "-inf", purgeMax(now)).Err()
}

// activeRange selects scores strictly after now-TTL. purgeMax is its
// complement, so a member is either active or purgeable, never both.
func activeRange(now time.Time) *redis.ZRangeBy {
	return &redis.ZRangeBy{Min: "(" + cutoffScore(now), Max: "+inf"}
}

func purgeMax(now time.Time) string {
	return cutoffScore(now)
}

func cutoffScore(now time.Time) string {
	return strconv.FormatInt(now.Add(-dismissalTTL).UnixMilli(), 10)
}

// activeFromScores turns ZSET members into dismissals and keeps the active ones.
func activeFromScores(zs []redis.Z, now time.Time) map[types.ID]struct{} {
	out := make(map[types.ID]struct{}, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		d := Dismissal{TripID: types.ID(id), DismissedAt: time.UnixMilli(int64(z.Score))}
		if d.Active(now) {
			out[d.TripID] = struct{}{}
		}
	}
	return out
}

func (s *Store) SetLastScan(ctx context.Context, userID types.ID, at time.Time) error {
	return s.redis.Set(ctx, lastScanKey(userID), strconv.FormatInt(at.UnixMilli(), 10), 0).Err()
}

// LastScan returns when detection last completed, and whether it ever has.
func (s *Store) LastScan(ctx context.Context, userID types.ID) (time.Time, bool, error) {
	val, err := s.redis.Get(ctx, lastScanKey(userID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func dismissedKey(userID types.ID) string {
	return fmt.Sprintf(dismissedKeyPrefix, string(userID))
}

func lastScanKey(userID types.ID) string {
	return fmt.Sprintf(lastScanKeyPrefix, string(userID))
}
