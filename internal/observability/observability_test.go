package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/quake-exposure-service/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.in))
		})
	}
}

func TestNewLogger_RespectsLevel(t *testing.T) {
	logger := NewLogger(&config.Config{LogLevel: "warn", LogFormat: "text"})
	require.NotNil(t, logger)
	assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
	assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, &config.Config{LogLevel: "info", LogFormat: "json"})
	logger.Info("snapshot complete", "scored", 3)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "snapshot complete", line["msg"])
	assert.Equal(t, "quake-exposure", line["service"])
	assert.Equal(t, 3.0, line["scored"])
}

func TestNewMetricsForTesting_Unregistered(t *testing.T) {
	m := NewMetricsForTesting()
	m.SnapshotsTotal.WithLabelValues("ok").Inc()
	m.RowsRejected.WithLabelValues("city", "duplicate").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsRejected.WithLabelValues("city", "duplicate")))

	// A fresh set registers cleanly in an isolated registry.
	reg := prometheus.NewRegistry()
	fresh := NewMetricsForTesting()
	require.NoError(t, reg.Register(fresh.SnapshotsTotal))
	require.NoError(t, reg.Register(fresh.ResultsPublished))
}
