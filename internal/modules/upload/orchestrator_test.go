package upload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"tripalbum/internal/modules/album"
	"tripalbum/internal/modules/trip"
	"tripalbum/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeAlbums struct {
	mu        sync.Mutex
	created   []album.CreateSpec
	uploaded  map[types.ID][]types.ID
	createErr error
	failFor   map[types.ID]bool
	onUpload  func(ref album.MediaRef)

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	hold        time.Duration
}

func newFakeAlbums() *fakeAlbums {
	return &fakeAlbums{uploaded: make(map[types.ID][]types.ID), failFor: make(map[types.ID]bool)}
}

func (f *fakeAlbums) CreateAlbum(_ context.Context, spec album.CreateSpec) (types.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, spec)
	return types.ID("album-" + spec.Title), nil
}

func (f *fakeAlbums) UploadMedia(_ context.Context, albumID types.ID, ref album.MediaRef) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		peak := f.maxInFlight.Load()
		if n <= peak || f.maxInFlight.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	if f.onUpload != nil {
		f.onUpload(ref)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[ref.ID] {
		return errors.New("upload rejected")
	}
	f.uploaded[albumID] = append(f.uploaded[albumID], ref.ID)
	return nil
}

type fakeSource struct{}

func (fakeSource) Ref(_ context.Context, id types.ID) (album.MediaRef, error) {
	if id == "missing" {
		return album.MediaRef{}, errors.New("media not found")
	}
	return album.MediaRef{ID: id, Filename: string(id) + ".jpg", Path: "/media/" + string(id) + ".jpg"}, nil
}

type fakeCache struct {
	mu      sync.Mutex
	removed []types.ID
}

func (c *fakeCache) RemoveTrip(id types.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, id)
}

func testTrip(id string, media ...types.ID) trip.DetectedTrip {
	start := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return trip.DetectedTrip{
		ID:             types.ID(id),
		Location:       "Busan",
		Point:          types.Point{Lat: 35.18, Lng: 129.08},
		StartDate:      start,
		EndDate:        start.Add(48 * time.Hour),
		MediaIDs:       media,
		MediaCount:     len(media),
		PhotoCount:     len(media),
		SuggestedTitle: "Busan trip",
	}
}

type progressLog struct {
	mu    sync.Mutex
	calls [][2]int
}

func (p *progressLog) record(attempted, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, [2]int{attempted, total})
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestCreateAlbumFromTrip_ProgressWithPartialFailures(t *testing.T) {
	albums := newFakeAlbums()
	albums.failFor["m2"] = true
	cache := &fakeCache{}
	o := NewOrchestrator("u1", albums, fakeSource{}, cache, zaptest.NewLogger(t))

	tr := testTrip("t1", "m1", "m2", "missing", "m4")
	var progress progressLog
	res, err := o.CreateAlbumFromTrip(context.Background(), tr, "", progress.record)
	require.NoError(t, err)

	assert.Equal(t, types.ID("album-Busan trip"), res.AlbumID)
	assert.Equal(t, 2, res.Uploaded)
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, [][2]int{{1, 4}, {2, 4}, {3, 4}, {4, 4}}, progress.calls)
	assert.Equal(t, []types.ID{"m1", "m4"}, albums.uploaded[res.AlbumID])
	assert.Equal(t, []types.ID{"t1"}, cache.removed)

	require.Len(t, albums.created, 1)
	spec := albums.created[0]
	assert.Equal(t, album.VisibilityPrivate, spec.Visibility)
	assert.Equal(t, types.ID("u1"), spec.UserID)
	require.NotNil(t, spec.Location)
	assert.Equal(t, "Busan", *spec.Location)
	assert.Equal(t, tr.StartDate, *spec.StartDate)
	assert.Equal(t, tr.EndDate, *spec.EndDate)
}

func TestCreateAlbumFromTrip_ExplicitTitle(t *testing.T) {
	albums := newFakeAlbums()
	o := NewOrchestrator("u1", albums, fakeSource{}, nil, zaptest.NewLogger(t))

	res, err := o.CreateAlbumFromTrip(context.Background(), testTrip("t1", "m1"), "Summer in Busan", nil)
	require.NoError(t, err)
	assert.Equal(t, types.ID("album-Summer in Busan"), res.AlbumID)
}

func TestCreateAlbumFromTrip_CreateFailure(t *testing.T) {
	albums := newFakeAlbums()
	albums.createErr = errors.New("db down")
	cache := &fakeCache{}
	o := NewOrchestrator("u1", albums, fakeSource{}, cache, zaptest.NewLogger(t))

	var progress progressLog
	_, err := o.CreateAlbumFromTrip(context.Background(), testTrip("t1", "m1", "m2"), "", progress.record)
	require.ErrorIs(t, err, ErrAlbumCreate)
	assert.Empty(t, progress.calls)
	assert.Empty(t, albums.uploaded)
	assert.Empty(t, cache.removed)
}

func TestCreateAlbumFromTrip_CancelMidLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	albums := newFakeAlbums()
	var seen atomic.Int32
	albums.onUpload = func(album.MediaRef) {
		if seen.Add(1) == 2 {
			cancel()
		}
	}
	cache := &fakeCache{}
	o := NewOrchestrator("u1", albums, fakeSource{}, cache, zaptest.NewLogger(t))

	var progress progressLog
	res, err := o.CreateAlbumFromTrip(ctx, testTrip("t1", "m1", "m2", "m3", "m4"), "", progress.record)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, res.Uploaded, "the in-flight upload completes")
	assert.Equal(t, [][2]int{{1, 4}, {2, 4}}, progress.calls)
	assert.Len(t, albums.created, 1, "album stays partially populated")
	assert.Empty(t, cache.removed)
}

func TestCreateAlbumFromTrip_CancelWhileWaitingForSlot(t *testing.T) {
	uploadSlot <- struct{}{}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	timer := time.AfterFunc(20*time.Millisecond, cancel)
	defer timer.Stop()

	o := NewOrchestrator("u1", newFakeAlbums(), fakeSource{}, nil, zaptest.NewLogger(t))
	_, err := o.CreateAlbumFromTrip(ctx, testTrip("t1", "m1"), "", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateAlbumFromTrip_UploadsNeverOverlap(t *testing.T) {
	albums := newFakeAlbums()
	albums.hold = 2 * time.Millisecond
	o1 := NewOrchestrator("u1", albums, fakeSource{}, nil, zaptest.NewLogger(t))
	o2 := NewOrchestrator("u1", albums, fakeSource{}, nil, zaptest.NewLogger(t))

	var g errgroup.Group
	g.Go(func() error {
		_, err := o1.CreateAlbumFromTrip(context.Background(), testTrip("a", "a1", "a2", "a3", "a4", "a5"), "A", nil)
		return err
	})
	g.Go(func() error {
		_, err := o2.CreateAlbumFromTrip(context.Background(), testTrip("b", "b1", "b2", "b3", "b4", "b5"), "B", nil)
		return err
	})
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), albums.maxInFlight.Load())
	assert.Len(t, albums.uploaded["album-A"], 5)
	assert.Len(t, albums.uploaded["album-B"], 5)
}
