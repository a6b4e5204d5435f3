package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/exposure"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

func validateFormat(format string, allowed ...string) error {
	if !slices.Contains(allowed, format) {
		return fmt.Errorf("unsupported --format %q (want one of %v)", format, allowed)
	}
	return nil
}

func writeReport(w io.Writer, report exposure.Report, top int, format string) error {
	ranked := report.Ranked(top)
	switch format {
	case formatJSON:
		report.Results = ranked
		return writeJSON(w, report)
	case formatCSV:
		return writeScoresCSV(w, ranked)
	default:
		formatScoresTable(w, ranked)
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatScoresTable(out io.Writer, rows []exposure.ScoredRecord) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "No results.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tCITY\tCOUNTRY\tQUAKES\tM_MAX\tD_NEAR_KM\tSCORE")
	_, _ = fmt.Fprintln(w, "----\t----\t-------\t------\t-----\t---------\t-----")
	for i, r := range rows {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%.1f\t%.1f\t%.3f\n",
			i+1, r.CityName, r.Country, r.NQuakes, r.MMax, r.DNearKM, r.Score)
	}
	_ = w.Flush()
}

func writeScoresCSV(out io.Writer, rows []exposure.ScoredRecord) error {
	cw := csv.NewWriter(out)

	header := []string{"rank", "city_name", "country", "population", "n_quakes", "m_avg", "m_max", "d_near", "impact_score", "d_score", "score"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}
	for i, r := range rows {
		row := []string{
			strconv.Itoa(i + 1),
			r.CityName,
			r.Country,
			strconv.FormatFloat(r.Population, 'f', 0, 64),
			strconv.Itoa(r.NQuakes),
			formatFloat(r.MAvg),
			formatFloat(r.MMax),
			formatFloat(r.DNearKM),
			formatFloat(r.ImpactScore),
			formatFloat(r.DScore),
			formatFloat(r.Score),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatQuakesTable(out io.Writer, events []domain.EarthquakeEvent) {
	if len(events) == 0 {
		_, _ = fmt.Fprintln(out, "No earthquakes.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TIME\tMAG\tDEPTH_KM\tLAT\tLON\tPLACE")
	_, _ = fmt.Fprintln(w, "----\t---\t--------\t---\t---\t-----")
	for _, ev := range events {
		at := "-"
		if !ev.Time.IsZero() {
			at = ev.Time.Format(time.DateTime)
		}
		_, _ = fmt.Fprintf(w, "%s\t%.1f\t%.1f\t%.3f\t%.3f\t%s\n",
			at, ev.Magnitude, ev.DepthKM, ev.Lat, ev.Lon, ev.Place)
	}
	_ = w.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
