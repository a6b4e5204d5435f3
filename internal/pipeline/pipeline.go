package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/exposure"
	"github.com/couchcryptid/quake-exposure-service/internal/observability"
)

const (
	initialBackoff  = 200 * time.Millisecond
	maxBackoff      = 5 * time.Second
	defaultInterval = 15 * time.Minute
)

// ErrPublish marks a snapshot that was stored but could not be published.
var ErrPublish = errors.New("publish results")

// Publisher delivers a finished report to an external sink and returns the
// number of records written.
type Publisher interface {
	Publish(ctx context.Context, report exposure.Report) (int, error)
}

// Options configures what each snapshot fetches and how often.
type Options struct {
	Query    domain.QuakeQuery
	Cities   domain.CitySource
	Interval time.Duration
}

// Pipeline orchestrates the fetch-analyze-publish snapshot loop.
type Pipeline struct {
	quakes    domain.QuakeSource
	cities    domain.CityLoader
	engine    *exposure.Engine
	publisher Publisher
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics

	latest atomic.Pointer[exposure.Report]
	ready  atomic.Bool
}

// New creates a Pipeline. publisher may be nil, in which case reports are
// only kept in memory.
func New(quakes domain.QuakeSource, cities domain.CityLoader, engine *exposure.Engine, publisher Publisher, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	return &Pipeline{
		quakes:    quakes,
		cities:    cities,
		engine:    engine,
		publisher: publisher,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once a snapshot has completed, or an error
// describing why the service is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not completed a snapshot yet")
	}
	return nil
}

// Latest returns the most recent report and whether one exists.
func (p *Pipeline) Latest() (exposure.Report, bool) {
	r := p.latest.Load()
	if r == nil {
		return exposure.Report{}, false
	}
	return *r, true
}

// Run takes a snapshot every interval until the context is cancelled.
// Failed snapshots are retried with exponential backoff. A snapshot that was
// stored but not published only retries the publish, until the next
// snapshot is due.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "interval", p.opts.Interval, "days_back", p.opts.Query.DaysBack)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		report, err := p.RunOnce(ctx)
		next := time.Now().Add(p.opts.Interval)
		if err != nil {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				return nil
			}
			if !errors.Is(err, ErrPublish) {
				p.logger.Error("snapshot failed", "error", err, "retry_in", backoff)
				if !p.backoffOrStop(ctx, &backoff) {
					return nil
				}
				continue
			}
			p.logger.Error("snapshot stored but not published", "error", err)
			p.retryPublish(ctx, report, next)
		}

		backoff = initialBackoff
		if !sleepWithContext(ctx, time.Until(next)) {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}
	}
}

// RunOnce fetches the inputs, analyzes them, publishes the results and
// stores the report as the latest snapshot. A publish failure is returned
// after the report has been stored.
func (p *Pipeline) RunOnce(ctx context.Context) (exposure.Report, error) {
	start := time.Now()

	raws, err := p.quakes.FetchQuakes(ctx, p.opts.Query)
	if err != nil {
		p.metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return exposure.Report{}, fmt.Errorf("fetch quakes: %w", err)
	}
	fc, err := p.cities.LoadCities(ctx, p.opts.Cities)
	if err != nil {
		p.metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return exposure.Report{}, fmt.Errorf("load cities: %w", err)
	}

	events, quakeErrs := domain.ParseQuakes(raws)
	cities, cityErrs := domain.ParseCities(fc)
	parseErrs := append(quakeErrs, cityErrs...)
	for _, re := range parseErrs {
		p.logger.Warn("row rejected", "kind", re.Kind, "key", re.Key, "reason", re.Reason(), "error", re.Err)
	}

	report, err := p.engine.Analyze(ctx, events, cities)
	if err != nil {
		p.metrics.SnapshotsTotal.WithLabelValues("error").Inc()
		return exposure.Report{}, fmt.Errorf("analyze: %w", err)
	}
	report.RowErrors = append(parseErrs, report.RowErrors...)
	for _, re := range report.RowErrors {
		p.metrics.RowsRejected.WithLabelValues(re.Kind, re.Reason()).Inc()
	}

	p.latest.Store(&report)
	p.ready.Store(true)
	p.metrics.SnapshotsTotal.WithLabelValues(report.Reason).Inc()
	p.metrics.QuakesIndexed.Set(float64(len(events)))
	p.metrics.CitiesScored.Set(float64(len(report.Results)))

	p.logger.Info("snapshot complete",
		"reason", report.Reason,
		"quakes", len(events),
		"cities", len(cities),
		"scored", len(report.Results),
		"rejected", len(report.RowErrors),
		"duration", time.Since(start),
	)

	if p.publisher != nil {
		n, err := p.publisher.Publish(ctx, report)
		if err != nil {
			p.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
			return report, fmt.Errorf("%w: %w", ErrPublish, err)
		}
		p.metrics.ResultsPublished.Add(float64(n))
	}

	p.metrics.SnapshotDuration.Observe(time.Since(start).Seconds())
	return report, nil
}

// retryPublish republishes report with backoff until it succeeds, the
// context is cancelled or the deadline for the next snapshot passes.
func (p *Pipeline) retryPublish(ctx context.Context, report exposure.Report, deadline time.Time) {
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	backoff := initialBackoff
	for p.backoffOrStop(ctx, &backoff) {
		n, err := p.publisher.Publish(ctx, report)
		if err == nil {
			p.metrics.ResultsPublished.Add(float64(n))
			p.logger.Info("publish retry succeeded", "records", n)
			return
		}
		p.logger.Error("publish retry failed", "error", err, "retry_in", backoff)
	}
	p.logger.Warn("giving up on publish until the next snapshot", "generated_at", report.GeneratedAt)
}

// backoffOrStop sleeps with the current backoff and advances it. Returns
// false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
