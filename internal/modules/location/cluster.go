// README: Seed-based radius clustering shared by trip detection and home inference.
package location

import (
	"time"

	"tripalbum/internal/types"
)

// Cluster is an ephemeral group of items produced by ClusterByRadius.
type Cluster[T any] struct {
	Center  types.Point // mean of member coordinates
	Members []T
	Start   time.Time
	End     time.Time
}

// Size returns the number of members.
func (c Cluster[T]) Size() int { return len(c.Members) }

// GroupBySeed partitions items in one greedy pass over input order. Each item not
// yet assigned seeds a new group, and every later unassigned candidate for which
// joins(seed, candidate) holds is added to it. Membership is only ever tested
// against the seed, never against other members, so the grouping depends on the
// order of items.
func GroupBySeed[T any](items []T, joins func(seed, candidate T) bool) [][]T {
	visited := make([]bool, len(items))
	var groups [][]T
	for i := range items {
		if visited[i] {
			continue
		}
		visited[i] = true
		group := []T{items[i]}
		for j := i + 1; j < len(items); j++ {
			if visited[j] {
				continue
			}
			if joins(items[i], items[j]) {
				group = append(group, items[j])
				visited[j] = true
			}
		}
		groups = append(groups, group)
	}
	return groups
}

// ClusterByRadius groups items whose position lies within radiusMeters of the
// group's seed. O(n²); fine for the ~1000 item scans it is used on.
func ClusterByRadius[T any](items []T, pos func(T) types.Point, at func(T) time.Time, radiusMeters float64) []Cluster[T] {
	groups := GroupBySeed(items, func(seed, candidate T) bool {
		return DistanceMeters(pos(seed), pos(candidate)) <= radiusMeters
	})

	clusters := make([]Cluster[T], 0, len(groups))
	for _, members := range groups {
		clusters = append(clusters, summarize(members, pos, at))
	}
	return clusters
}

func summarize[T any](members []T, pos func(T) types.Point, at func(T) time.Time) Cluster[T] {
	c := Cluster[T]{Members: members}
	var sumLat, sumLng float64
	for i, m := range members {
		p := pos(m)
		sumLat += p.Lat
		sumLng += p.Lng

		ts := at(m)
		if i == 0 || ts.Before(c.Start) {
			c.Start = ts
		}
		if i == 0 || ts.After(c.End) {
			c.End = ts
		}
	}
	n := float64(len(members))
	c.Center = types.Point{Lat: sumLat / n, Lng: sumLng / n}
	return c
}

// Largest returns the index of the cluster with the most members, preferring the
// earliest one on ties. It returns -1 for an empty slice.
func Largest[T any](clusters []Cluster[T]) int {
	best := -1
	for i, c := range clusters {
		if best < 0 || c.Size() > clusters[best].Size() {
			best = i
		}
	}
	return best
}
