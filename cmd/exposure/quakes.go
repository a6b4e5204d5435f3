package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-exposure-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/observability"
)

var quakesCmd = &cobra.Command{
	Use:   "quakes",
	Short: "List recent earthquakes from the USGS feed",
	RunE:  runQuakes,
}

func init() {
	f := quakesCmd.Flags()
	f.Float64("min-mag", 5.0, "minimum magnitude")
	f.Int("days", 7, "days of events to fetch")
	f.String("format", formatTable, "output format: table or json")

	rootCmd.AddCommand(quakesCmd)
}

func runQuakes(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	minMag, _ := cmd.Flags().GetFloat64("min-mag")
	days, _ := cmd.Flags().GetInt("days")
	format, _ := cmd.Flags().GetString("format")
	if err := validateFormat(format, formatTable, formatJSON); err != nil {
		return err
	}
	if days <= 0 {
		return fmt.Errorf("quakes: --days must be > 0 (got %d)", days)
	}

	client := usgs.NewClient(cfg.USGSURL, cfg.USGSTimeout, observability.NewMetrics(), logger)
	raws, err := client.FetchQuakes(ctx, domain.QuakeQuery{DaysBack: days, MinMagnitude: minMag})
	if err != nil {
		return fmt.Errorf("quakes: %w", err)
	}

	events, rowErrs := domain.ParseQuakes(raws)
	for _, re := range rowErrs {
		logger.Warn("row rejected", "kind", re.Kind, "key", re.Key, "reason", re.Reason())
	}

	out := cmd.OutOrStdout()
	if format == formatJSON {
		return writeJSON(out, events)
	}
	formatQuakesTable(out, events)
	return nil
}
