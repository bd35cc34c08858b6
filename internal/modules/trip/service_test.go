package trip

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tripalbum/internal/config"
	"tripalbum/internal/modules/album"
	"tripalbum/internal/modules/location"
	"tripalbum/internal/types"
)

// ---------------------------------------------------------------------------
// In-memory collaborators
// ---------------------------------------------------------------------------

type memDismissals struct {
	mu        sync.Mutex
	entries   map[types.ID]Dismissal
	lastScan  time.Time
	scanned   bool
	activeErr error
}

func newMemDismissals() *memDismissals {
	return &memDismissals{entries: make(map[types.ID]Dismissal)}
}

func (m *memDismissals) Dismiss(_ context.Context, _, tripID types.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[tripID] = Dismissal{TripID: tripID, DismissedAt: at}
	return nil
}

func (m *memDismissals) Active(_ context.Context, _ types.ID, now time.Time) (map[types.ID]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.activeErr != nil {
		return nil, m.activeErr
	}
	out := make(map[types.ID]struct{})
	for id, d := range m.entries {
		if d.Active(now) {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (m *memDismissals) PurgeExpired(_ context.Context, _ types.ID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, d := range m.entries {
		if !d.Active(now) {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *memDismissals) SetLastScan(_ context.Context, _ types.ID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastScan, m.scanned = at, true
	return nil
}

func (m *memDismissals) LastScan(_ context.Context, _ types.ID) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastScan, m.scanned, nil
}

type stubDetector struct {
	mu       sync.Mutex
	calls    int
	trips    []DetectedTrip
	err      error
	excluded map[string]struct{}
	home     *location.HomeLocation
	block    chan struct{}
	started  chan struct{}
}

func (d *stubDetector) Detect(_ context.Context, home *location.HomeLocation, excluded map[string]struct{}, _ int) ([]DetectedTrip, error) {
	d.mu.Lock()
	d.calls++
	d.excluded = excluded
	d.home = home
	trips, err, block, started := d.trips, d.err, d.block, d.started
	d.mu.Unlock()
	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	return trips, err
}

func (d *stubDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// seqDetector returns results[i] on the i-th call. The first call signals
// firstStarted and then waits for releaseFirst.
type seqDetector struct {
	mu           sync.Mutex
	calls        int
	results      [][]DetectedTrip
	firstStarted chan struct{}
	releaseFirst chan struct{}
}

func (d *seqDetector) Detect(context.Context, *location.HomeLocation, map[string]struct{}, int) ([]DetectedTrip, error) {
	d.mu.Lock()
	n := d.calls
	d.calls++
	d.mu.Unlock()
	if n == 0 {
		close(d.firstStarted)
		<-d.releaseFirst
	}
	return d.results[min(n, len(d.results)-1)], nil
}

func (d *seqDetector) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

type stubAlbums struct {
	albums []album.Album
	media  map[types.ID][]album.Media
	err    error
}

func (s stubAlbums) ListAlbums(context.Context, types.ID) ([]album.Album, error) {
	return s.albums, s.err
}

func (s stubAlbums) ListMedia(_ context.Context, id types.ID) ([]album.Media, error) {
	m, ok := s.media[id]
	if !ok {
		return nil, album.ErrNotFound
	}
	return m, nil
}

type memHomes struct {
	mu   sync.Mutex
	home *location.HomeLocation
}

func (h *memHomes) Get(context.Context, types.ID) (*location.HomeLocation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.home, nil
}

func (h *memHomes) SetHome(_ context.Context, _ types.ID, lat, lng float64) (*location.HomeLocation, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.home = &location.HomeLocation{Point: types.Point{Lat: lat, Lng: lng}}
	return h.home, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc        *Service
	detector   *stubDetector
	dismissals *memDismissals
	homes      *memHomes
	clock      *clock
}

func newFixture(t *testing.T, albums stubAlbums, trips ...DetectedTrip) *fixture {
	f := &fixture{
		detector:   &stubDetector{trips: trips},
		dismissals: newMemDismissals(),
		homes:      &memHomes{},
		clock:      &clock{now: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)},
	}
	f.svc = NewService(ServiceDeps{
		UserID:   "u1",
		Detector: f.detector,
		Albums:   albums,
		Homes:    f.homes,
		Store:    f.dismissals,
		Config:   config.TripsConfig{ScanDays: 30},
		Log:      zaptest.NewLogger(t),
	})
	f.svc.now = f.clock.Now
	return f
}

func tripIDs(trips []DetectedTrip) []types.ID {
	out := make([]types.ID, len(trips))
	for i, t := range trips {
		out[i] = t.ID
	}
	return out
}

// ---------------------------------------------------------------------------
// Cache behaviour
// ---------------------------------------------------------------------------

func TestDetectTrips_CacheHitWithin24h(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"}, DetectedTrip{ID: "b"})
	ctx := context.Background()

	_, err := f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)
	f.clock.Advance(23 * time.Hour)
	got, err := f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)

	assert.Equal(t, []types.ID{"a", "b"}, tripIDs(got))
	assert.Equal(t, 1, f.detector.callCount())

	last, ok, err := f.svc.LastScan(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, f.clock.Now().Add(-23*time.Hour), last)
}

func TestDetectTrips_ExpiresAfter24h(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"})
	ctx := context.Background()

	_, err := f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	_, err = f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.detector.callCount())
}

func TestDetectTrips_ForceRefresh(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"})
	ctx := context.Background()

	_, _ = f.svc.DetectTrips(ctx, false)
	_, err := f.svc.DetectTrips(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.detector.callCount())
}

func TestDetectTrips_FailureKeepsCache(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"})
	ctx := context.Background()

	_, err := f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)

	f.detector.mu.Lock()
	f.detector.err = ErrDetectionFailed
	f.detector.mu.Unlock()

	_, err = f.svc.DetectTrips(ctx, true)
	require.ErrorIs(t, err, ErrDetectionFailed)

	got, err := f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"a"}, tripIDs(got))
}

func TestInvalidateCache(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"})
	ctx := context.Background()

	_, _ = f.svc.DetectTrips(ctx, false)
	f.svc.InvalidateCache()
	_, _ = f.svc.DetectTrips(ctx, false)
	assert.Equal(t, 2, f.detector.callCount())
}

func TestInvalidateDuringRecomputeIsNotLost(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "stale"})
	f.detector.block = make(chan struct{})
	f.detector.started = make(chan struct{})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.DetectTrips(ctx, false)
		done <- err
	}()

	<-f.detector.started
	f.svc.InvalidateCache()
	close(f.detector.block)
	require.NoError(t, <-done)

	f.detector.mu.Lock()
	f.detector.block, f.detector.started = nil, nil
	f.detector.mu.Unlock()

	_, err := f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.detector.callCount(), "result computed before invalidation must not be cached")
}

func TestDetectTrips_OlderRecomputeDoesNotOverwriteNewer(t *testing.T) {
	f := newFixture(t, stubAlbums{})
	seq := &seqDetector{
		results: [][]DetectedTrip{
			{{ID: "old-scan"}},
			{{ID: "new-scan"}},
		},
		firstStarted: make(chan struct{}),
		releaseFirst: make(chan struct{}),
	}
	f.svc.detector = seq
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := f.svc.DetectTrips(ctx, true)
		done <- err
	}()

	<-seq.firstStarted
	trips, err := f.svc.DetectTrips(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"new-scan"}, tripIDs(trips))

	close(seq.releaseFirst)
	require.NoError(t, <-done)

	trips, err = f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"new-scan"}, tripIDs(trips), "finishing last must not let the older scan win")
	assert.Equal(t, 2, seq.callCount())
}

func TestTrip_ExpiredCacheIsNotServed(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"})
	_, err := f.svc.DetectTrips(context.Background(), false)
	require.NoError(t, err)

	_, err = f.svc.Trip("a")
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	_, err = f.svc.Trip("a")
	assert.ErrorIs(t, err, ErrTripNotFound)
}

func TestSetHomeLocation_DropsCacheAndRoundTrips(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"})
	ctx := context.Background()

	_, _ = f.svc.DetectTrips(ctx, false)
	_, err := f.svc.SetHomeLocation(ctx, 37.50, 127.03)
	require.NoError(t, err)

	home, err := f.svc.GetHomeLocation(ctx)
	require.NoError(t, err)
	require.NotNil(t, home)
	assert.False(t, home.IsAutoDetected)
	assert.Equal(t, types.Point{Lat: 37.50, Lng: 127.03}, home.Point)

	_, _ = f.svc.DetectTrips(ctx, false)
	assert.Equal(t, 2, f.detector.callCount())
	assert.Equal(t, home, f.detector.home, "persisted home is handed to the detector")
}

func TestRemoveTripAndLookup(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"}, DetectedTrip{ID: "b"})
	ctx := context.Background()
	_, _ = f.svc.DetectTrips(ctx, false)

	got, err := f.svc.Trip("b")
	require.NoError(t, err)
	assert.Equal(t, types.ID("b"), got.ID)

	f.svc.RemoveTrip("a")
	trips, err := f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"b"}, tripIDs(trips))
	_, err = f.svc.Trip("a")
	assert.ErrorIs(t, err, ErrTripNotFound)
}

// ---------------------------------------------------------------------------
// Dismissals
// ---------------------------------------------------------------------------

func TestDismissTrip_SevenDayBoundary(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"}, DetectedTrip{ID: "b"})
	ctx := context.Background()

	_, err := f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)
	require.NoError(t, f.svc.DismissTrip(ctx, "a"))

	got, err := f.svc.DetectTrips(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"b"}, tripIDs(got), "dismissal applies to the cached list")

	f.clock.Advance(7*24*time.Hour - time.Millisecond)
	got, err = f.svc.DetectTrips(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"b"}, tripIDs(got))

	f.clock.Advance(time.Millisecond)
	got, err = f.svc.DetectTrips(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []types.ID{"a", "b"}, tripIDs(got), "trip reappears exactly at seven days")
}

func TestDismissTrip_EmptyID(t *testing.T) {
	f := newFixture(t, stubAlbums{})
	assert.ErrorIs(t, f.svc.DismissTrip(context.Background(), ""), ErrBadRequest)
}

func TestDetectTrips_DismissalLookupFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"})
	f.dismissals.activeErr = errors.New("redis down")

	got, err := f.svc.DetectTrips(context.Background(), false)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

// ---------------------------------------------------------------------------
// Exclusion set
// ---------------------------------------------------------------------------

func TestDetectTrips_ExclusionFromAlbums(t *testing.T) {
	albums := stubAlbums{
		albums: []album.Album{{ID: "al1"}, {ID: "al2"}},
		media: map[types.ID][]album.Media{
			"al1": {{OriginalFilename: "IMG_1.jpg"}},
			"al2": {{OriginalFilename: "IMG_2.jpg"}, {OriginalFilename: "VID_3.mp4"}},
		},
	}
	f := newFixture(t, albums)

	_, err := f.svc.DetectTrips(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, map[string]struct{}{"IMG_1.jpg": {}, "IMG_2.jpg": {}, "VID_3.mp4": {}}, f.detector.excluded)
}

func TestDetectTrips_ExclusionErrorYieldsEmptySet(t *testing.T) {
	tests := []struct {
		name   string
		albums stubAlbums
	}{
		{name: "list albums fails", albums: stubAlbums{err: errors.New("api down")}},
		{name: "list media fails", albums: stubAlbums{
			albums: []album.Album{{ID: "ok"}, {ID: "gone"}},
			media:  map[types.ID][]album.Media{"ok": {{OriginalFilename: "IMG_1.jpg"}}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.albums)
			_, err := f.svc.DetectTrips(context.Background(), false)
			require.NoError(t, err)
			assert.NotNil(t, f.detector.excluded)
			assert.Empty(t, f.detector.excluded)
		})
	}
}

func TestConcurrentDetectTrips(t *testing.T) {
	f := newFixture(t, stubAlbums{}, DetectedTrip{ID: "a"})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%3 == 0 {
				f.svc.InvalidateCache()
			}
			_, err := f.svc.DetectTrips(ctx, i%2 == 0)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
}

func TestRunScheduler_StopsOnCancel(t *testing.T) {
	f := newFixture(t, stubAlbums{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.RunScheduler(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunScheduler did not return after cancellation")
	}
	assert.Zero(t, f.detector.callCount())
}

// ---------------------------------------------------------------------------
// Redis store (integration)
// ---------------------------------------------------------------------------

func TestStore_DismissalBoundary(t *testing.T) {
	addr := os.Getenv("TRIPALBUM_REDIS_ADDR")
	if addr == "" {
		t.Skip("TRIPALBUM_REDIS_ADDR not set; skipping integration test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()

	ctx := context.Background()
	store := NewStore(rdb)
	userID := types.ID("it_" + time.Now().Format("150405.000000"))
	at := time.Now().Truncate(time.Millisecond)

	require.NoError(t, store.Dismiss(ctx, userID, "t1", at))

	active, err := store.Active(ctx, userID, at.Add(dismissalTTL-time.Millisecond))
	require.NoError(t, err)
	assert.Contains(t, active, types.ID("t1"))

	active, err = store.Active(ctx, userID, at.Add(dismissalTTL))
	require.NoError(t, err)
	assert.NotContains(t, active, types.ID("t1"))

	require.NoError(t, store.PurgeExpired(ctx, userID, at.Add(dismissalTTL)))
	n, err := rdb.ZCard(ctx, dismissedKey(userID)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, store.SetLastScan(ctx, userID, at))
	last, ok, err := store.LastScan(ctx, userID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, last.Equal(at))
}
