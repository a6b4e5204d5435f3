package usgs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/observability"
)

const source = "usgs"

// Client implements domain.QuakeSource using the USGS FDSN event web service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewClient creates a USGS event client for the given query endpoint.
func NewClient(baseURL string, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		metrics: metrics,
		logger:  logger,
	}
}

// FetchQuakes requests GeoJSON events newer than q.StartTime with at least
// q.MinMagnitude.
func (c *Client) FetchQuakes(ctx context.Context, q domain.QuakeQuery) ([]domain.RawQuake, error) {
	params := url.Values{
		"format":       {"geojson"},
		"starttime":    {q.StartTime().Format("2006-01-02T15:04:05")},
		"minmagnitude": {strconv.FormatFloat(q.MinMagnitude, 'f', -1, 64)},
	}

	start := time.Now()
	features, err := c.doRequest(ctx, c.baseURL+"?"+params.Encode())
	c.metrics.UpstreamDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
	if err != nil {
		c.metrics.UpstreamRequests.WithLabelValues(source, "error").Inc()
		return nil, err
	}
	c.metrics.UpstreamRequests.WithLabelValues(source, "success").Inc()

	c.logger.Debug("fetched earthquake features",
		"count", len(features),
		"days_back", q.DaysBack,
		"min_magnitude", q.MinMagnitude,
	)
	return features, nil
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]domain.RawQuake, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usgs request: %w", err)
	}
	defer resp.Body.Close()

	// The FDSN service answers 204 when no events match.
	if resp.StatusCode == http.StatusNoContent {
		return []domain.RawQuake{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("usgs API error: status %d: %s", resp.StatusCode, body)
	}

	var fc response
	if err := json.NewDecoder(resp.Body).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if fc.Features == nil {
		fc.Features = []domain.RawQuake{}
	}
	return fc.Features, nil
}

// USGS API response types.

type response struct {
	Type     string            `json:"type"`
	Features []domain.RawQuake `json:"features"`
}
