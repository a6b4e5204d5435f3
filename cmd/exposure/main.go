package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/quake-exposure-service/internal/config"
	"github.com/couchcryptid/quake-exposure-service/internal/observability"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:          "exposure",
	Short:        "Rank populated places by recent earthquake exposure",
	Long:         "Fetches recent USGS earthquakes and Natural Earth populated places, then scores each city by nearby event count, peak magnitude and proximity.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		logger = observability.NewLoggerTo(os.Stderr, cfg)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
