package usgs

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/observability"
)

const (
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

const sampleResponse = `{
  "type": "FeatureCollection",
  "metadata": {"count": 3},
  "features": [
    {"type": "Feature", "id": "us7000m9g4",
     "properties": {"mag": 7.4, "place": "18 km S of Hualien City, Taiwan", "time": 1711928580000, "title": "M 7.4"},
     "geometry": {"type": "Point", "coordinates": [121.5609, 23.8187, 34.75]}},
    {"type": "Feature", "id": "us7000nullmag",
     "properties": {"mag": null, "place": "somewhere", "time": 1711928590000},
     "geometry": {"type": "Point", "coordinates": [10, 10, 5]}},
    {"type": "Feature", "id": "us7000nogeom",
     "properties": {"mag": 5.2, "place": "nowhere", "time": 1711928600000},
     "geometry": null}
  ]
}`

func testClient(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		metrics:    observability.NewMetricsForTesting(),
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_FetchQuakes_Success(t *testing.T) {
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 12, 30, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "geojson", r.URL.Query().Get("format"))
		assert.Equal(t, "2024-03-27T12:30:00", r.URL.Query().Get("starttime"))
		assert.Equal(t, "5", r.URL.Query().Get("minmagnitude"))

		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	raws, err := c.FetchQuakes(context.Background(), domain.QuakeQuery{DaysBack: 30, MinMagnitude: 5})
	require.NoError(t, err)
	require.Len(t, raws, 3)

	assert.Equal(t, "us7000m9g4", raws[0].ID)
	require.NotNil(t, raws[0].Properties.Mag)
	assert.Equal(t, 7.4, *raws[0].Properties.Mag)
	assert.Equal(t, []float64{121.5609, 23.8187, 34.75}, raws[0].Geometry.Coordinates)
	assert.Nil(t, raws[1].Properties.Mag)
	assert.Nil(t, raws[2].Geometry)

	events, rowErrs := domain.ParseQuakes(raws)
	assert.Len(t, events, 1)
	assert.Len(t, rowErrs, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.UpstreamRequests.WithLabelValues("usgs", "success")))
}

func TestClient_FetchQuakes_FractionalMagnitude(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4.5", r.URL.Query().Get("minmagnitude"))
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"type":"FeatureCollection","features":[]}`))
	}))
	defer srv.Close()

	raws, err := testClient(srv.URL).FetchQuakes(context.Background(), domain.QuakeQuery{DaysBack: 7, MinMagnitude: 4.5})
	require.NoError(t, err)
	assert.NotNil(t, raws)
	assert.Empty(t, raws)
}

func TestClient_FetchQuakes_NoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	raws, err := testClient(srv.URL).FetchQuakes(context.Background(), domain.QuakeQuery{DaysBack: 1, MinMagnitude: 9})
	require.NoError(t, err)
	assert.Empty(t, raws)
}

func TestClient_FetchQuakes_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`Error 400: Bad Request. Bad starttime value`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.FetchQuakes(context.Background(), domain.QuakeQuery{DaysBack: 30, MinMagnitude: 5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "Bad starttime")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.metrics.UpstreamRequests.WithLabelValues("usgs", "error")))
}

func TestClient_FetchQuakes_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		_, _ = w.Write([]byte(`{"features": [`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchQuakes(context.Background(), domain.QuakeQuery{DaysBack: 30})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response")
}

func TestClient_FetchQuakes_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient.Timeout = 50 * time.Millisecond

	_, err := c.FetchQuakes(context.Background(), domain.QuakeQuery{DaysBack: 30})
	require.Error(t, err)
}
