package main

import (
	"fmt"
	"math"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-exposure-service/internal/adapter/naturalearth"
	"github.com/couchcryptid/quake-exposure-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-exposure-service/internal/config"
	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/exposure"
	"github.com/couchcryptid/quake-exposure-service/internal/observability"
	"github.com/couchcryptid/quake-exposure-service/internal/pipeline"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Run one exposure snapshot and print the ranked cities",
	Long: `Run one exposure snapshot against live data and print the ranked cities.

Examples:
  # Top 10 cities over the configured window
  exposure score

  # Top 25 as CSV with a 100 km radius
  exposure score --top 25 --radius 100 --format csv`,
	RunE: runScore,
}

func init() {
	addScoreFlags(scoreCmd)
	rootCmd.AddCommand(scoreCmd)
}

func addScoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("top", 10, "number of cities to print (0 = all)")
	f.String("format", formatTable, "output format: table, json or csv")
	f.Float64("radius", 0, "neighbor radius in km (overrides RADIUS_KM)")
	f.Int("days", 0, "days of events to fetch (overrides DAYS_BACK)")
	f.Float64("min-mag", 0, "minimum magnitude (overrides MIN_MAGNITUDE)")
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	top, _ := cmd.Flags().GetInt("top")
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format, formatTable, formatJSON, formatCSV); err != nil {
		return err
	}
	if top < 0 {
		return fmt.Errorf("score: --top must be >= 0 (got %d)", top)
	}

	radius, query, err := scoreInputs(cmd, cfg)
	if err != nil {
		return err
	}

	engine, err := exposure.NewEngine(exposure.Options{
		RadiusKM: radius,
		Weights: exposure.Weights{
			Count:     cfg.WeightCount,
			Magnitude: cfg.WeightMagnitude,
			Proximity: cfg.WeightProximity,
		},
		Workers: cfg.Workers,
	}, logger)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}

	metrics := observability.NewMetrics()
	p := pipeline.New(
		usgs.NewClient(cfg.USGSURL, cfg.USGSTimeout, metrics, logger),
		naturalearth.NewLoader(cfg.CitiesTimeout, metrics, logger),
		engine,
		nil,
		pipeline.Options{
			Query: query,
			Cities: domain.CitySource{
				URL:           cfg.CitiesURL,
				MinPopulation: cfg.MinPopulation,
				CacheFile:     cfg.CityCacheFile(),
			},
		},
		logger,
		metrics,
	)

	report, err := p.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("score: %w", err)
	}
	if report.Reason != exposure.ReasonOK {
		logger.Warn("snapshot produced no scores", "reason", report.Reason)
	}
	return writeReport(cmd.OutOrStdout(), report, top, format)
}

// scoreInputs applies the flags that were set on top of the loaded config.
// Overrides are held to the same bounds config.Load enforces.
func scoreInputs(cmd *cobra.Command, c *config.Config) (float64, domain.QuakeQuery, error) {
	radius := c.RadiusKM
	query := domain.QuakeQuery{DaysBack: c.DaysBack, MinMagnitude: c.MinMagnitude}

	f := cmd.Flags()
	if f.Changed("radius") {
		radius, _ = f.GetFloat64("radius")
		if radius <= 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
			return 0, query, fmt.Errorf("score: --radius must be a positive number of km (got %v)", radius)
		}
	}
	if f.Changed("days") {
		query.DaysBack, _ = f.GetInt("days")
		if query.DaysBack <= 0 {
			return 0, query, fmt.Errorf("score: --days must be > 0 (got %d)", query.DaysBack)
		}
	}
	if f.Changed("min-mag") {
		query.MinMagnitude, _ = f.GetFloat64("min-mag")
		if math.IsNaN(query.MinMagnitude) || math.IsInf(query.MinMagnitude, 0) {
			return 0, query, fmt.Errorf("score: --min-mag must be finite (got %v)", query.MinMagnitude)
		}
	}
	return radius, query, nil
}
