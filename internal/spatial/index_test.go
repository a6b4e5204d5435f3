package spatial_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/spatial"
)

func event(x, y, mag float64) domain.EarthquakeEvent {
	return domain.EarthquakeEvent{Position: orb.Point{x, y}, Magnitude: mag}
}

func randomEvents(n int, seed uint64) []domain.EarthquakeEvent {
	r := rand.New(rand.NewPCG(seed, seed+1))
	events := make([]domain.EarthquakeEvent, n)
	for i := range events {
		// Coarse grid so duplicates and axis ties occur.
		x := float64(r.IntN(200)-100) * 1000
		y := float64(r.IntN(200)-100) * 1000
		events[i] = event(x, y, 4+r.Float64()*4)
		events[i].DepthKM = r.Float64() * 700
	}
	return events
}

func bruteRadius(events []domain.EarthquakeEvent, x, y, r float64) []int {
	var out []int
	for i, ev := range events {
		dx, dy := ev.Position.X()-x, ev.Position.Y()-y
		if dx*dx+dy*dy <= r*r {
			out = append(out, i)
		}
	}
	return out
}

func bruteNearest(events []domain.EarthquakeEvent, x, y float64) float64 {
	best := math.Inf(1)
	for _, ev := range events {
		best = math.Min(best, math.Hypot(ev.Position.X()-x, ev.Position.Y()-y))
	}
	return best
}

func sorted(h []int) []int {
	out := slices.Clone(h)
	slices.Sort(out)
	return out
}

func TestBuild_EmptyIndexPolicy(t *testing.T) {
	idx, err := spatial.Build(nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, spatial.ErrEmptyIndex))
	require.NotNil(t, idx)
	assert.Equal(t, 0, idx.Len())
	assert.True(t, math.IsInf(idx.NearestDist(0, 0), 1))
	assert.Empty(t, idx.QueryRadius(0, 0, 1e9))
}

func TestBuild_RejectsNonFinite(t *testing.T) {
	tests := []struct {
		name string
		ev   domain.EarthquakeEvent
	}{
		{"NaN x", event(math.NaN(), 0, 5)},
		{"infinite y", event(0, math.Inf(1), 5)},
		{"NaN magnitude", event(0, 0, math.NaN())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := spatial.Build([]domain.EarthquakeEvent{event(1, 1, 5), tt.ev})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrNonFinite))
		})
	}
}

func TestIndex_AttributesByHandle(t *testing.T) {
	events := []domain.EarthquakeEvent{event(0, 0, 5.0), event(10, 10, 6.0), event(-5, 3, 7.5)}
	events[1].DepthKM = 33
	idx, err := spatial.Build(events)
	require.NoError(t, err)

	assert.Equal(t, 3, idx.Len())
	for h, ev := range events {
		assert.Equal(t, ev.Magnitude, idx.Magnitude(h))
		assert.Equal(t, ev.DepthKM, idx.Depth(h))
		assert.Equal(t, ev.Position, idx.Point(h))
	}
}

func TestIndex_TwoEventScenario(t *testing.T) {
	idx, err := spatial.Build([]domain.EarthquakeEvent{event(0, 0, 5.0), event(10, 10, 6.0)})
	require.NoError(t, err)

	assert.InDelta(t, math.Sqrt2, idx.NearestDist(1, 1), 1e-12)
	assert.Equal(t, []int{0, 1}, sorted(idx.QueryRadius(1, 1, 50000)))
	assert.Equal(t, []int{0}, idx.QueryRadius(1, 1, 2))
}

func TestIndex_SelfQueryRadiusZero(t *testing.T) {
	events := randomEvents(50, 7)
	// Give one event a unique position so the zero-radius query is unambiguous.
	events[17] = event(123456.5, -654321.25, 6.2)
	idx, err := spatial.Build(events)
	require.NoError(t, err)

	assert.Equal(t, []int{17}, idx.QueryRadius(123456.5, -654321.25, 0))
	assert.Equal(t, 0.0, idx.NearestDist(123456.5, -654321.25))
}

func TestIndex_RadiusIsInclusive(t *testing.T) {
	idx, err := spatial.Build([]domain.EarthquakeEvent{event(3000, 4000, 5)})
	require.NoError(t, err)

	assert.Equal(t, []int{0}, idx.QueryRadius(0, 0, 5000))
	assert.Empty(t, idx.QueryRadius(0, 0, 4999.999))
	assert.Empty(t, idx.QueryRadius(0, 0, -1))
}

func TestIndex_RadiusIsMeters(t *testing.T) {
	// Two epicenters 30 km and 80 km east of a point on the equator.
	origin := domain.Project(0, 0)
	near := domain.EarthquakeEvent{Position: orb.Point{origin.X() + 30000, 0}, Magnitude: 5}
	far := domain.EarthquakeEvent{Position: orb.Point{origin.X() + 80000, 0}, Magnitude: 6}
	idx, err := spatial.Build([]domain.EarthquakeEvent{near, far})
	require.NoError(t, err)

	const radiusKM = 50
	assert.Equal(t, []int{0}, idx.QueryRadius(origin.X(), origin.Y(), radiusKM*1000))
	assert.Empty(t, idx.QueryRadius(origin.X(), origin.Y(), radiusKM))
	assert.InDelta(t, 30000, idx.NearestDist(origin.X(), origin.Y()), 1e-9)
}

func TestIndex_MatchesBruteForce(t *testing.T) {
	events := randomEvents(500, 42)
	idx, err := spatial.Build(events)
	require.NoError(t, err)

	r := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		x := (r.Float64()*240 - 120) * 1000
		y := (r.Float64()*240 - 120) * 1000
		radius := r.Float64() * 40000

		assert.Equal(t, bruteRadius(events, x, y, radius), sorted(idx.QueryRadius(x, y, radius)))
		assert.InDelta(t, bruteNearest(events, x, y), idx.NearestDist(x, y), 1e-6)
	}
}

func TestIndex_NearestDistProperties(t *testing.T) {
	events := randomEvents(300, 99)
	idx, err := spatial.Build(events)
	require.NoError(t, err)

	for _, ev := range events[:50] {
		assert.Equal(t, 0.0, idx.NearestDist(ev.Position.X(), ev.Position.Y()))
	}

	// Half-meter offsets cannot coincide with the kilometer grid.
	r := rand.New(rand.NewPCG(5, 6))
	for range 100 {
		x := float64(r.IntN(200)-100)*1000 + 0.5
		y := float64(r.IntN(200)-100)*1000 + 0.5
		d := idx.NearestDist(x, y)
		assert.Greater(t, d, 0.0)
	}
}

func TestIndex_RadiusMonotonic(t *testing.T) {
	events := randomEvents(400, 3)
	idx, err := spatial.Build(events)
	require.NoError(t, err)

	radii := []float64{0, 1000, 5000, 10000, 25000, 50000, 1e6}
	r := rand.New(rand.NewPCG(8, 9))
	for range 50 {
		x := (r.Float64()*200 - 100) * 1000
		y := (r.Float64()*200 - 100) * 1000
		prev := -1
		for _, radius := range radii {
			n := len(idx.QueryRadius(x, y, radius))
			assert.GreaterOrEqual(t, n, prev)
			prev = n
		}
		assert.Len(t, idx.QueryRadius(x, y, 1e6), len(events))
	}
}

func TestIndex_DuplicatePositions(t *testing.T) {
	events := []domain.EarthquakeEvent{event(5, 5, 5), event(5, 5, 6), event(5, 5, 7), event(100, 100, 4)}
	idx, err := spatial.Build(events)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2}, sorted(idx.QueryRadius(5, 5, 0)))
	assert.Equal(t, 0.0, idx.NearestDist(5, 5))
}
