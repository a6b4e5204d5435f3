// Package spatial provides a static k-d tree over projected earthquake
// epicenters with radius and nearest-neighbor queries.
//
// Events are addressed by handle: the position of the event in the slice
// passed to Build. Magnitudes and depths are stored inside the index and are
// looked up with the same handle, so query results never need a second
// source of truth.
package spatial

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
)

// ErrEmptyIndex is returned by Build when there are no events. The index
// returned alongside it is still usable: NearestDist reports +Inf and
// QueryRadius reports no handles.
var ErrEmptyIndex = errors.New("spatial index has no events")

// Index is an immutable balanced k-d tree. It is safe for concurrent queries.
type Index struct {
	points     []orb.Point
	magnitudes []float64
	depths     []float64

	// tree holds handles in implicit k-d order: the median of every range
	// [lo, hi) is the split node, split on x at even depth and y at odd.
	tree []int
}

// Build indexes events in input order. Handles are slice positions.
func Build(events []domain.EarthquakeEvent) (*Index, error) {
	idx := &Index{
		points:     make([]orb.Point, len(events)),
		magnitudes: make([]float64, len(events)),
		depths:     make([]float64, len(events)),
		tree:       make([]int, len(events)),
	}
	if len(events) == 0 {
		return idx, ErrEmptyIndex
	}

	for i, ev := range events {
		if !domain.IsFinite(ev.Position.X(), ev.Position.Y(), ev.Magnitude) {
			return nil, fmt.Errorf("build spatial index: event %d: %w", i, domain.ErrNonFinite)
		}
		idx.points[i] = ev.Position
		idx.magnitudes[i] = ev.Magnitude
		idx.depths[i] = ev.DepthKM
		idx.tree[i] = i
	}

	idx.build(0, len(idx.tree), 0)
	return idx, nil
}

func (idx *Index) build(lo, hi, depth int) {
	if hi-lo <= 1 {
		return
	}
	mid := lo + (hi-lo)/2
	idx.selectNth(lo, hi, mid, depth%2)
	idx.build(lo, mid, depth+1)
	idx.build(mid+1, hi, depth+1)
}

// selectNth reorders tree[lo:hi] so that tree[k] holds the handle a full sort
// on axis would put there, with lesser handles before it and greater ones
// after. Expected linear time.
func (idx *Index) selectNth(lo, hi, k, axis int) {
	t := idx.tree
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		if idx.less(t[mid], t[lo], axis) {
			t[mid], t[lo] = t[lo], t[mid]
		}
		if idx.less(t[hi-1], t[lo], axis) {
			t[hi-1], t[lo] = t[lo], t[hi-1]
		}
		if idx.less(t[hi-1], t[mid], axis) {
			t[hi-1], t[mid] = t[mid], t[hi-1]
		}

		// Median of three is the pivot, parked at the end while partitioning.
		t[mid], t[hi-1] = t[hi-1], t[mid]
		pivot := t[hi-1]
		store := lo
		for i := lo; i < hi-1; i++ {
			if idx.less(t[i], pivot, axis) {
				t[i], t[store] = t[store], t[i]
				store++
			}
		}
		t[store], t[hi-1] = t[hi-1], t[store]

		switch {
		case k == store:
			return
		case k < store:
			hi = store
		default:
			lo = store + 1
		}
	}
}

// less orders handles by coordinate on axis, then by handle, so the order is
// total even for coincident events.
func (idx *Index) less(a, b, axis int) bool {
	pa, pb := idx.points[a][axis], idx.points[b][axis]
	if pa != pb {
		return pa < pb
	}
	return a < b
}

// Len returns the number of indexed events.
func (idx *Index) Len() int {
	return len(idx.points)
}

// Magnitude returns the magnitude of the event with handle h.
func (idx *Index) Magnitude(h int) float64 {
	return idx.magnitudes[h]
}

// Depth returns the depth in kilometers of the event with handle h.
func (idx *Index) Depth(h int) float64 {
	return idx.depths[h]
}

// Point returns the projected position of the event with handle h.
func (idx *Index) Point(h int) orb.Point {
	return idx.points[h]
}

// QueryRadius returns the handles of every event within radiusM meters of
// (x, y), boundary included. The order of the result is unspecified.
func (idx *Index) QueryRadius(x, y, radiusM float64) []int {
	if len(idx.tree) == 0 || radiusM < 0 || math.IsNaN(radiusM) {
		return nil
	}
	q := orb.Point{x, y}
	var out []int
	idx.radius(q, radiusM, radiusM*radiusM, 0, len(idx.tree), 0, &out)
	return out
}

func (idx *Index) radius(q orb.Point, r, r2 float64, lo, hi, depth int, out *[]int) {
	if lo >= hi {
		return
	}
	mid := lo + (hi-lo)/2
	h := idx.tree[mid]
	p := idx.points[h]
	if planar.DistanceSquared(q, p) <= r2 {
		*out = append(*out, h)
	}

	axis := depth % 2
	diff := q[axis] - p[axis]
	if diff <= r {
		idx.radius(q, r, r2, lo, mid, depth+1, out)
	}
	if diff >= -r {
		idx.radius(q, r, r2, mid+1, hi, depth+1, out)
	}
}

// NearestDist returns the distance in meters from (x, y) to the closest
// event, or +Inf when the index is empty. Only the distance is reported, so
// ties between equidistant events need no resolution.
func (idx *Index) NearestDist(x, y float64) float64 {
	if len(idx.tree) == 0 {
		return math.Inf(1)
	}
	q := orb.Point{x, y}
	best := math.Inf(1)
	idx.nearest(q, 0, len(idx.tree), 0, &best)
	return math.Sqrt(best)
}

func (idx *Index) nearest(q orb.Point, lo, hi, depth int, best *float64) {
	if lo >= hi {
		return
	}
	mid := lo + (hi-lo)/2
	p := idx.points[idx.tree[mid]]
	if d2 := planar.DistanceSquared(q, p); d2 < *best {
		*best = d2
	}

	axis := depth % 2
	diff := q[axis] - p[axis]
	nearLo, nearHi, farLo, farHi := lo, mid, mid+1, hi
	if diff > 0 {
		nearLo, nearHi, farLo, farHi = mid+1, hi, lo, mid
	}
	idx.nearest(q, nearLo, nearHi, depth+1, best)
	if diff*diff <= *best {
		idx.nearest(q, farLo, farHi, depth+1, best)
	}
}
