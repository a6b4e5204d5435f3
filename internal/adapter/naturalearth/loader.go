package naturalearth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/observability"
)

const source = "naturalearth"

// minPopulationMember records the filter threshold at the top level of the
// cache file.
const minPopulationMember = "min_population"

// Loader implements domain.CityLoader for the Natural Earth populated places
// GeoJSON. Filtered results are persisted to src.CacheFile and served from
// there on later loads.
type Loader struct {
	httpClient *http.Client
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewLoader creates a populated places loader.
func NewLoader(timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Loader {
	return &Loader{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

// LoadCities returns places above src.MinPopulation, reading the cache file
// when present and downloading src.URL otherwise.
func (l *Loader) LoadCities(ctx context.Context, src domain.CitySource) (*geojson.FeatureCollection, error) {
	if src.CacheFile != "" {
		fc, err := readCache(src.CacheFile)
		switch {
		case err == nil:
			if cached, ok := l.fromCache(fc, src); ok {
				return cached, nil
			}
		case !errors.Is(err, fs.ErrNotExist):
			l.logger.Warn("ignoring unreadable city cache", "path", src.CacheFile, "error", err)
		}
	}

	l.logger.Info("downloading cities", "url", src.URL)
	start := time.Now()
	fc, err := l.download(ctx, src.URL)
	l.metrics.UpstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		l.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return nil, err
	}
	l.metrics.UpstreamRequests.WithLabelValues(source, "success").Inc()

	filtered := FilterPopulated(fc, src.MinPopulation)
	l.logger.Info("filtered cities", "downloaded", len(fc.Features), "kept", len(filtered.Features), "min_population", src.MinPopulation)

	if src.CacheFile != "" {
		if err := writeCache(src.CacheFile, filtered, src.MinPopulation); err != nil {
			l.logger.Warn("write city cache failed", "path", src.CacheFile, "error", err)
		}
	}
	return filtered, nil
}

// fromCache serves a cached collection when it was filtered with a threshold
// no stricter than src.MinPopulation. A lower cached threshold is narrowed in
// memory; anything else needs a fresh download.
func (l *Loader) fromCache(fc *geojson.FeatureCollection, src domain.CitySource) (*geojson.FeatureCollection, bool) {
	cachedMin, ok := fc.ExtraMembers[minPopulationMember].(float64)
	switch {
	case !ok || cachedMin > src.MinPopulation:
		l.logger.Info("city cache filtered with a different threshold, refreshing",
			"path", src.CacheFile, "cached_min_population", fc.ExtraMembers[minPopulationMember], "min_population", src.MinPopulation)
		return nil, false
	case cachedMin < src.MinPopulation:
		fc = FilterPopulated(fc, src.MinPopulation)
	}
	l.logger.Debug("loaded cities from cache", "path", src.CacheFile, "count", len(fc.Features))
	return fc, true
}

func (l *Loader) download(ctx context.Context, url string) (*geojson.FeatureCollection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cities request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("cities download error: status %d: %s", resp.StatusCode, body)
	}

	fc := geojson.NewFeatureCollection()
	if err := json.NewDecoder(resp.Body).Decode(fc); err != nil {
		return nil, fmt.Errorf("decode cities: %w", err)
	}
	return fc, nil
}

// FilterPopulated keeps features whose pop_max exceeds minPopulation and
// upper-cases the name, pop_max and adm0name keys read by domain.ParseCities.
// Features are modified in place.
func FilterPopulated(fc *geojson.FeatureCollection, minPopulation float64) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f == nil {
			continue
		}
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
		rename(f.Properties, "pop_max", "POP_MAX")
		rename(f.Properties, "name", "NAME")
		rename(f.Properties, "adm0name", "ADM0NAME")

		if f.Properties.MustFloat64("POP_MAX", 0) > minPopulation {
			out.Append(f)
		}
	}
	return out
}

func rename(p geojson.Properties, from, to string) {
	v, ok := p[from]
	if !ok {
		return
	}
	if _, exists := p[to]; !exists {
		p[to] = v
	}
	delete(p, from)
}

func readCache(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode city cache: %w", err)
	}
	return fc, nil
}

// writeCache replaces the cache file atomically so concurrent readers never
// observe a partial collection.
func writeCache(path string, fc *geojson.FeatureCollection, minPopulation float64) error {
	out := *fc
	out.ExtraMembers = geojson.Properties{minPopulationMember: minPopulation}
	data, err := out.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode city cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".cities-*.json")
	if err != nil {
		return fmt.Errorf("create temp cache: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp cache: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
