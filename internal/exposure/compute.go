package exposure

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/spatial"
)

// DefaultRadiusKM is the neighbor search radius used when none is configured.
const DefaultRadiusKM = 50.0

// Record holds the raw exposure metrics for one city.
type Record struct {
	CityName    string  `json:"city_name"`
	Population  float64 `json:"population"`
	Country     string  `json:"country"`
	NQuakes     int     `json:"n_quakes"`
	MAvg        float64 `json:"m_avg"`
	MMax        float64 `json:"m_max"`
	DNearKM     float64 `json:"d_near"`
	ImpactScore float64 `json:"impact_score"`
}

// Compute derives raw metrics for every city against the index. Cities are
// processed in parallel by at most workers goroutines (GOMAXPROCS when
// workers <= 0); output order follows input order with failed rows removed.
//
// A city with a non-finite position or a name already used by an earlier
// city is reported as a RowError. The returned error is non-nil only when
// ctx is cancelled.
func Compute(ctx context.Context, cities []domain.City, idx *spatial.Index, radiusKM float64, workers int) ([]Record, []domain.RowError, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	records := make([]Record, len(cities))
	rowErrs := make([]error, len(cities))

	seen := make(map[string]struct{}, len(cities))
	for i, c := range cities {
		if _, dup := seen[c.Name]; dup {
			rowErrs[i] = domain.ErrDuplicateCity
			continue
		}
		seen[c.Name] = struct{}{}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	radiusM := radiusKM * 1000
	for i := range cities {
		if rowErrs[i] != nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec, err := computeCity(cities[i], idx, radiusM)
			if err != nil {
				rowErrs[i] = err
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("compute exposure: %w", err)
	}

	out := make([]Record, 0, len(cities))
	var failed []domain.RowError
	for i, c := range cities {
		if rowErrs[i] != nil {
			failed = append(failed, domain.RowError{Kind: domain.KindCity, Key: c.Name, Err: rowErrs[i]})
			continue
		}
		out = append(out, records[i])
	}
	return out, failed, nil
}

// computeCity evaluates one city. The impact denominator uses the nearest
// event overall, which may lie outside the neighbor radius.
func computeCity(c domain.City, idx *spatial.Index, radiusM float64) (Record, error) {
	x, y := c.Position.X(), c.Position.Y()
	if !domain.IsFinite(x, y) {
		return Record{}, fmt.Errorf("city position: %w", domain.ErrNonFinite)
	}

	dNearM := idx.NearestDist(x, y)
	rec := Record{
		CityName:   c.Name,
		Population: c.Population,
		Country:    c.Country,
		DNearKM:    dNearM / 1000,
	}

	neighbors := idx.QueryRadius(x, y, radiusM)
	if len(neighbors) == 0 {
		return rec, nil
	}

	var sum float64
	rec.MMax = idx.Magnitude(neighbors[0])
	for _, h := range neighbors {
		m := idx.Magnitude(h)
		sum += m
		if m > rec.MMax {
			rec.MMax = m
		}
	}
	rec.NQuakes = len(neighbors)
	rec.MAvg = sum / float64(len(neighbors))
	rec.ImpactScore = sum / (dNearM/1000 + 1)
	return rec, nil
}
