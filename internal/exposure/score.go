package exposure

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
)

// weightTolerance bounds floating-point drift in the weight sum.
const weightTolerance = 1e-6

// Weights are the composite score coefficients for event count, peak
// magnitude and proximity. They must be non-negative and sum to 1 so that
// scores stay in [0, 1].
type Weights struct {
	Count     float64 `json:"count"`
	Magnitude float64 `json:"magnitude"`
	Proximity float64 `json:"proximity"`
}

// DefaultWeights weighs peak magnitude highest.
var DefaultWeights = Weights{Count: 0.3, Magnitude: 0.4, Proximity: 0.3}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Count + w.Magnitude + w.Proximity
}

// Validate checks that the weights are finite, non-negative and sum to 1.
func (w Weights) Validate() error {
	var errs []string
	named := []struct {
		name  string
		value float64
	}{
		{"count", w.Count},
		{"magnitude", w.Magnitude},
		{"proximity", w.Proximity},
	}
	for _, n := range named {
		if !domain.IsFinite(n.value) {
			errs = append(errs, n.name+" weight must be finite")
			continue
		}
		if n.value < 0 {
			errs = append(errs, n.name+" weight must be >= 0")
		}
	}
	if sum := w.Sum(); domain.IsFinite(sum) && math.Abs(sum-1) > weightTolerance {
		errs = append(errs, fmt.Sprintf("weights must sum to 1, got %.4f", sum))
	}
	if len(errs) > 0 {
		return errors.New("invalid weights: " + strings.Join(errs, "; "))
	}
	return nil
}

// ScoredRecord is a NormalizedRecord with its composite score.
type ScoredRecord struct {
	NormalizedRecord
	Score float64 `json:"score"`
}

// Score computes the weighted composite for each row. Rows carrying a
// non-finite normalized input are rejected rather than propagated.
func Score(rows []NormalizedRecord, w Weights) ([]ScoredRecord, []domain.RowError) {
	out := make([]ScoredRecord, 0, len(rows))
	var rejected []domain.RowError
	for _, r := range rows {
		if !domain.IsFinite(r.NQuakesNorm, r.MMaxNorm, r.DScore) {
			rejected = append(rejected, domain.RowError{
				Kind: domain.KindCity,
				Key:  r.CityName,
				Err:  fmt.Errorf("score inputs: %w", domain.ErrNonFinite),
			})
			continue
		}
		out = append(out, ScoredRecord{
			NormalizedRecord: r,
			Score:            w.Count*r.NQuakesNorm + w.Magnitude*r.MMaxNorm + w.Proximity*r.DScore,
		})
	}
	return out, rejected
}
