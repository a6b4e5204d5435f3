package config

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Defaults for the upstream data sources.
const (
	DefaultUSGSURL   = "https://earthquake.usgs.gov/fdsnws/event/1/query"
	DefaultCitiesURL = "https://d2ad6b4ur7yvpq.cloudfront.net/naturalearth-3.3.0/ne_10m_populated_places_simple.geojson"
	cityCacheFile    = "ne_10m_populated_places.json"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	RateLimitRPS    int

	// Earthquake feed.
	USGSURL      string
	USGSTimeout  time.Duration
	DaysBack     int
	MinMagnitude float64

	// Populated places.
	CitiesURL     string
	CitiesTimeout time.Duration
	CityCacheDir  string
	CityCacheSize int
	MinPopulation float64

	// Exposure analysis.
	RadiusKM        float64
	WeightCount     float64
	WeightMagnitude float64
	WeightProximity float64
	Workers         int
	RefreshInterval time.Duration

	// Optional Kafka sink for scored results.
	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
}

// CityCacheFile is the path of the filtered populated places cache.
func (c *Config) CityCacheFile() string {
	if c.CityCacheDir == "" {
		return ""
	}
	return filepath.Join(c.CityCacheDir, cityCacheFile)
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	usgsTimeout, err := parseDuration("USGS_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}
	citiesTimeout, err := parseDuration("CITIES_TIMEOUT", "60s")
	if err != nil {
		return nil, err
	}
	refresh, err := parseDuration("REFRESH_INTERVAL", "15m")
	if err != nil {
		return nil, err
	}

	daysBack, err := parsePositiveInt("DAYS_BACK", 30)
	if err != nil {
		return nil, err
	}
	workers, err := parsePositiveInt("WORKERS", 8)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("CITY_CACHE_SIZE", 8)
	if err != nil {
		return nil, err
	}
	rps, err := parsePositiveInt("RATE_LIMIT_RPS", 5)
	if err != nil {
		return nil, err
	}

	minMagnitude, err := parseNonNegativeFloat("MIN_MAGNITUDE", 5.0)
	if err != nil {
		return nil, err
	}
	minPopulation, err := parseNonNegativeFloat("MIN_POPULATION", 100000)
	if err != nil {
		return nil, err
	}
	radiusKM, err := parseNonNegativeFloat("RADIUS_KM", 50)
	if err != nil {
		return nil, err
	}

	// Weight sums are validated by the exposure engine.
	wCount, err := parseNonNegativeFloat("WEIGHT_COUNT", 0.3)
	if err != nil {
		return nil, err
	}
	wMagnitude, err := parseNonNegativeFloat("WEIGHT_MAGNITUDE", 0.4)
	if err != nil {
		return nil, err
	}
	wProximity, err := parseNonNegativeFloat("WEIGHT_PROXIMITY", 0.3)
	if err != nil {
		return nil, err
	}

	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		RateLimitRPS:    rps,

		USGSURL:      sharedcfg.EnvOrDefault("USGS_URL", DefaultUSGSURL),
		USGSTimeout:  usgsTimeout,
		DaysBack:     daysBack,
		MinMagnitude: minMagnitude,

		CitiesURL:     sharedcfg.EnvOrDefault("CITIES_URL", DefaultCitiesURL),
		CitiesTimeout: citiesTimeout,
		CityCacheDir:  sharedcfg.EnvOrDefault("CITY_CACHE_DIR", "data"),
		CityCacheSize: cacheSize,
		MinPopulation: minPopulation,

		RadiusKM:        radiusKM,
		WeightCount:     wCount,
		WeightMagnitude: wMagnitude,
		WeightProximity: wProximity,
		Workers:         workers,
		RefreshInterval: refresh,

		KafkaEnabled: kafkaEnabled,
		KafkaBrokers: sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "quake-exposure"),
	}

	if cfg.USGSURL == "" {
		return nil, errors.New("USGS_URL is required")
	}
	if cfg.CitiesURL == "" {
		return nil, errors.New("CITIES_URL is required")
	}
	if cfg.RadiusKM == 0 {
		return nil, errors.New("RADIUS_KM must be > 0")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

func parseNonNegativeFloat(key string, def float64) (float64, error) {
	v, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, strconv.FormatFloat(def, 'f', -1, 64)), 64)
	if err != nil || v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s: must be a non-negative number", key)
	}
	return v, nil
}

func parseBool(key string, def bool) (bool, error) {
	b, err := strconv.ParseBool(sharedcfg.EnvOrDefault(key, strconv.FormatBool(def)))
	if err != nil {
		return false, fmt.Errorf("invalid %s", key)
	}
	return b, nil
}
