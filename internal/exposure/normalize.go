package exposure

import "math"

// Normalized column names, as reported for degenerate columns.
const (
	ColumnNQuakes     = "n_quakes"
	ColumnMMax        = "m_max"
	ColumnImpactScore = "impact_score"
	ColumnDScore      = "d_score"
)

// proximityOffset keeps 1/(d+offset) finite when a city sits on an epicenter.
const proximityOffset = 0.1

// NormalizedRecord is a Record plus metrics scaled to [0, 1] across the
// records of one run. The scaled values have no meaning outside that run.
type NormalizedRecord struct {
	Record
	NQuakesNorm     float64 `json:"n_quakes_norm"`
	MMaxNorm        float64 `json:"m_max_norm"`
	ImpactScoreNorm float64 `json:"impact_score_norm"`
	DScore          float64 `json:"d_score"`
}

// Normalize min-max scales n_quakes, m_max and impact_score across records,
// and derives d_score by scaling 1/(d_near_km+0.1) so that closer cities
// score higher. A column whose values are all equal scales to 0 for every
// row; the names of such columns are returned as the second value.
func Normalize(records []Record) ([]NormalizedRecord, []string) {
	out := make([]NormalizedRecord, len(records))
	if len(records) == 0 {
		return out, nil
	}

	nq := make([]float64, len(records))
	mm := make([]float64, len(records))
	is := make([]float64, len(records))
	px := make([]float64, len(records))
	for i, r := range records {
		nq[i] = float64(r.NQuakes)
		mm[i] = r.MMax
		is[i] = r.ImpactScore
		px[i] = 1 / (r.DNearKM + proximityOffset)
	}

	var degenerate []string
	scale := func(name string, col []float64) []float64 {
		scaled, ok := minMax(col)
		if !ok {
			degenerate = append(degenerate, name)
		}
		return scaled
	}
	nq = scale(ColumnNQuakes, nq)
	mm = scale(ColumnMMax, mm)
	is = scale(ColumnImpactScore, is)
	px = scale(ColumnDScore, px)

	for i, r := range records {
		out[i] = NormalizedRecord{
			Record:          r,
			NQuakesNorm:     nq[i],
			MMaxNorm:        mm[i],
			ImpactScoreNorm: is[i],
			DScore:          px[i],
		}
	}
	return out, degenerate
}

// minMax scales col in place to [0, 1]. It returns false and zeroes the
// column when every finite value is equal. Non-finite values are left as is
// so that scoring can reject the row.
func minMax(col []float64) ([]float64, bool) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range col {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}

	span := hi - lo
	if !(span > 0) {
		for i, v := range col {
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				col[i] = 0
			}
		}
		return col, false
	}

	for i, v := range col {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		col[i] = (v - lo) / span
	}
	return col, true
}
