// README: Batch clustering of media metadata and first-match pairing with existing albums.
package recommendation

import (
	"sort"
	"time"

	"tripalbum/internal/modules/album"
	"tripalbum/internal/modules/location"
	"tripalbum/internal/types"
)

// Analyze clusters items and pairs each cluster with the most recently created
// album that is near it or overlaps it in time. It has no side effects.
func Analyze(items []MediaInfo, albums []album.Album) []Item {
	ordered := make([]album.Album, len(albums))
	copy(ordered, albums)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CreatedAt.After(ordered[j].CreatedAt)
	})

	groups := clusterInfos(items)
	out := make([]Item, 0, len(groups))
	for _, g := range groups {
		out = append(out, recommend(g, ordered))
	}
	return out
}

// sameTrip is the membership rule: dated within three whole days OR located
// within 50 km. Either alone is enough.
func sameTrip(seed, candidate MediaInfo) bool {
	if seed.TakenAt != nil && candidate.TakenAt != nil {
		if wholeDays(seed.TakenAt.Time, candidate.TakenAt.Time) <= sameTripDays {
			return true
		}
	}
	p1, ok1 := seed.point()
	p2, ok2 := candidate.point()
	return ok1 && ok2 && location.DistanceMeters(p1, p2) <= sameTripMeters
}

func wholeDays(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour))
}

func clusterInfos(items []MediaInfo) []group {
	raw := location.GroupBySeed(items, sameTrip)
	groups := make([]group, 0, len(raw))
	for _, members := range raw {
		groups = append(groups, summarize(members))
	}
	return groups
}

func summarize(members []MediaInfo) group {
	g := group{members: members}
	var sumLat, sumLng float64
	located := 0
	for _, m := range members {
		if p, ok := m.point(); ok {
			sumLat += p.Lat
			sumLng += p.Lng
			located++
		}
		if m.TakenAt == nil {
			continue
		}
		ts := m.TakenAt.Time
		if g.start == nil || ts.Before(*g.start) {
			g.start = &ts
		}
		if g.end == nil || ts.After(*g.end) {
			g.end = &ts
		}
	}
	if located > 0 {
		g.center = &types.Point{Lat: sumLat / float64(located), Lng: sumLng / float64(located)}
	}
	return g
}

func recommend(g group, albums []album.Album) Item {
	it := Item{
		Type:       ItemNewTrip,
		MediaCount: len(g.members),
	}
	for i, m := range g.members {
		if i == maxPreviewNames {
			break
		}
		it.PreviewFilenames = append(it.PreviewFilenames, m.Filename)
	}
	if g.center != nil {
		lat, lng := g.center.Lat, g.center.Lng
		it.Latitude, it.Longitude = &lat, &lng
	}
	if g.start != nil {
		it.StartDate = &Timestamp{Time: *g.start}
		it.EndDate = &Timestamp{Time: *g.end}
	}

	for _, a := range albums {
		if !matches(g, a) {
			continue
		}
		id, title := a.ID, a.Title
		it.Type = ItemAddToExisting
		it.TargetAlbumID = &id
		it.TargetAlbumTitle = &title
		it.Location = a.Location
		break
	}
	return it
}

func matches(g group, a album.Album) bool {
	if ap := a.Point(); ap != nil && g.center != nil {
		if location.DistanceMeters(*ap, *g.center) <= sameTripMeters {
			return true
		}
	}
	// A single album date covers that instant.
	albumStart, albumEnd := a.StartDate, a.EndDate
	if albumStart == nil {
		albumStart = albumEnd
	}
	if albumEnd == nil {
		albumEnd = albumStart
	}
	if g.start == nil || albumStart == nil {
		return false
	}
	return !albumStart.After(*g.end) && !g.start.After(*albumEnd)
}
