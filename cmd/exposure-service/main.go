package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/quake-exposure-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/quake-exposure-service/internal/adapter/kafka"
	"github.com/couchcryptid/quake-exposure-service/internal/adapter/naturalearth"
	"github.com/couchcryptid/quake-exposure-service/internal/adapter/usgs"
	"github.com/couchcryptid/quake-exposure-service/internal/config"
	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/exposure"
	"github.com/couchcryptid/quake-exposure-service/internal/observability"
	"github.com/couchcryptid/quake-exposure-service/internal/pipeline"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	engine, err := exposure.NewEngine(exposure.Options{
		RadiusKM: cfg.RadiusKM,
		Weights: exposure.Weights{
			Count:     cfg.WeightCount,
			Magnitude: cfg.WeightMagnitude,
			Proximity: cfg.WeightProximity,
		},
		Workers: cfg.Workers,
	}, logger)
	if err != nil {
		logger.Error("invalid exposure settings", "error", err)
		os.Exit(1)
	}

	quakes := usgs.NewClient(cfg.USGSURL, cfg.USGSTimeout, metrics, logger)
	cities := naturalearth.NewCachedLoader(
		naturalearth.NewLoader(cfg.CitiesTimeout, metrics, logger),
		cfg.CityCacheSize,
		metrics,
	)

	// Kafka publishing is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.Publisher
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		publisher = writer
		logger.Info("kafka publishing enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		logger.Info("kafka publishing disabled")
	}

	p := pipeline.New(quakes, cities, engine, publisher, pipeline.Options{
		Query: domain.QuakeQuery{DaysBack: cfg.DaysBack, MinMagnitude: cfg.MinMagnitude},
		Cities: domain.CitySource{
			URL:           cfg.CitiesURL,
			MinPopulation: cfg.MinPopulation,
			CacheFile:     cfg.CityCacheFile(),
		},
		Interval: cfg.RefreshInterval,
	}, logger, metrics)

	gin.SetMode(gin.ReleaseMode)
	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Quakes:       quakes,
		Snapshots:    p,
		Ready:        p,
		RateLimitRPS: cfg.RateLimitRPS,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start snapshot pipeline.
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("pipeline did not stop before shutdown timeout")
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
