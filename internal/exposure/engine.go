// Package exposure computes per-city earthquake exposure metrics, scales
// them across a run and combines them into a weighted risk score.
package exposure

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/spatial"
)

// Reason codes describing how a report was produced.
const (
	ReasonOK               = "ok"
	ReasonEmptyIndex       = "empty_index"
	ReasonIndexBuildFailed = "index_build_failed"
	ReasonNoCities         = "no_cities"
)

// Report is the outcome of one analysis run.
type Report struct {
	GeneratedAt time.Time         `json:"generated_at"`
	RadiusKM    float64           `json:"radius_km"`
	Weights     Weights           `json:"weights"`
	Reason      string            `json:"reason"`
	QuakeCount  int               `json:"quake_count"`
	CityCount   int               `json:"city_count"`
	Degenerate  []string          `json:"degenerate_columns,omitempty"`
	Results     []ScoredRecord    `json:"results"`
	RowErrors   []domain.RowError `json:"-"`
}

// Ranked returns up to limit results ordered by descending score, ties
// broken by city name. A limit <= 0 returns every result.
func (r Report) Ranked(limit int) []ScoredRecord {
	ranked := slices.Clone(r.Results)
	slices.SortStableFunc(ranked, func(a, b ScoredRecord) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.CityName, b.CityName)
	})
	if limit > 0 && limit < len(ranked) {
		ranked = ranked[:limit]
	}
	return ranked
}

// Options configures an Engine.
type Options struct {
	RadiusKM float64
	Weights  Weights
	Workers  int
}

// Engine runs the build, compute, normalize and score stages over a
// snapshot of events and cities.
type Engine struct {
	radiusKM float64
	weights  Weights
	workers  int
	logger   *slog.Logger
}

// NewEngine validates opts and creates an Engine. A zero RadiusKM selects
// DefaultRadiusKM.
func NewEngine(opts Options, logger *slog.Logger) (*Engine, error) {
	if opts.RadiusKM == 0 {
		opts.RadiusKM = DefaultRadiusKM
	}
	if !domain.IsFinite(opts.RadiusKM) || opts.RadiusKM < 0 {
		return nil, fmt.Errorf("invalid radius %v km", opts.RadiusKM)
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	return &Engine{
		radiusKM: opts.RadiusKM,
		weights:  opts.Weights,
		workers:  opts.Workers,
		logger:   logger,
	}, nil
}

// RadiusKM returns the configured neighbor radius.
func (e *Engine) RadiusKM() float64 {
	return e.radiusKM
}

// Analyze scores cities against events. Index build failures, including an
// empty event set, produce a report with no results and a reason code rather
// than an error. The returned error is non-nil only when ctx is cancelled.
func (e *Engine) Analyze(ctx context.Context, events []domain.EarthquakeEvent, cities []domain.City) (Report, error) {
	report := Report{
		GeneratedAt: domain.Now(),
		RadiusKM:    e.radiusKM,
		Weights:     e.weights,
		Reason:      ReasonOK,
		QuakeCount:  len(events),
		CityCount:   len(cities),
		Results:     []ScoredRecord{},
	}

	idx, err := spatial.Build(events)
	switch {
	case errors.Is(err, spatial.ErrEmptyIndex):
		e.logger.Warn("no earthquake events to index, reporting zero results")
		report.Reason = ReasonEmptyIndex
		return report, nil
	case err != nil:
		e.logger.Error("spatial index build failed", "error", err)
		report.Reason = ReasonIndexBuildFailed
		return report, nil
	}

	if len(cities) == 0 {
		report.Reason = ReasonNoCities
		return report, nil
	}

	records, rowErrs, err := Compute(ctx, cities, idx, e.radiusKM, e.workers)
	if err != nil {
		return Report{}, err
	}
	report.RowErrors = append(report.RowErrors, rowErrs...)

	normalized, degenerate := Normalize(records)
	if len(degenerate) > 0 {
		e.logger.Info("constant columns normalized to zero", "columns", degenerate, "rows", len(normalized))
	}
	report.Degenerate = degenerate

	scored, rejected := Score(normalized, e.weights)
	report.RowErrors = append(report.RowErrors, rejected...)
	report.Results = scored

	for _, re := range report.RowErrors {
		e.logger.Warn("city row rejected", "city", re.Key, "reason", re.Reason(), "error", re.Err)
	}
	return report, nil
}
