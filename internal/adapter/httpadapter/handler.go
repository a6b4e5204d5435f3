package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/couchcryptid/quake-exposure-service/internal/domain"
	"github.com/couchcryptid/quake-exposure-service/internal/exposure"
)

const (
	latestQuakesDays   = 7
	defaultMinMag      = 5.0
	welcomeMessage     = "Welcome to the Earthquake Exposure API!"
	upstreamReqTimeout = 20 * time.Second
)

// SnapshotProvider returns the most recent exposure report, if any.
type SnapshotProvider interface {
	Latest() (exposure.Report, bool)
}

type handler struct {
	quakes    domain.QuakeSource
	snapshots SnapshotProvider
	logger    *slog.Logger
}

func newHandler(quakes domain.QuakeSource, snapshots SnapshotProvider, logger *slog.Logger) *handler {
	return &handler{quakes: quakes, snapshots: snapshots, logger: logger}
}

func (h *handler) registerRoutes(r *gin.RouterGroup) {
	r.GET("/", h.root)
	r.GET("/latest_quakes", h.latestQuakes)
	r.GET("/exposure", h.exposure)
}

func (h *handler) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": welcomeMessage})
}

// quakeSummary is the compact event shape served by /latest_quakes.
type quakeSummary struct {
	Place     string  `json:"place"`
	Magnitude float64 `json:"magnitude"`
	DepthKM   float64 `json:"depth_km"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
}

type quakesResponse struct {
	Count  int            `json:"count"`
	Quakes []quakeSummary `json:"quakes"`
}

func (h *handler) latestQuakes(c *gin.Context) {
	minMag := defaultMinMag
	if m := c.Query("min_mag"); m != "" {
		v, err := strconv.ParseFloat(m, 64)
		if err != nil || !domain.IsFinite(v) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_mag must be a number"})
			return
		}
		minMag = v
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), upstreamReqTimeout)
	defer cancel()

	raws, err := h.quakes.FetchQuakes(ctx, domain.QuakeQuery{DaysBack: latestQuakesDays, MinMagnitude: minMag})
	if err != nil {
		// Upstream outages degrade to an empty list.
		h.logger.Warn("latest quakes fetch failed", "error", err)
		c.JSON(http.StatusOK, quakesResponse{Quakes: []quakeSummary{}})
		return
	}

	events, rowErrs := domain.ParseQuakes(raws)
	if len(rowErrs) > 0 {
		h.logger.Debug("skipped malformed quake rows", "count", len(rowErrs))
	}
	out := quakesResponse{Count: len(events), Quakes: make([]quakeSummary, len(events))}
	for i, ev := range events {
		out.Quakes[i] = quakeSummary{
			Place:     ev.Place,
			Magnitude: ev.Magnitude,
			DepthKM:   ev.DepthKM,
			Lat:       ev.Lat,
			Lon:       ev.Lon,
		}
	}
	c.JSON(http.StatusOK, out)
}

func (h *handler) exposure(c *gin.Context) {
	limit := 0
	if l := c.Query("limit"); l != "" {
		v, err := strconv.Atoi(l)
		if err != nil || v < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = v
	}

	report, ok := h.snapshots.Latest()
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no exposure snapshot yet"})
		return
	}
	report.Results = report.Ranked(limit)
	c.JSON(http.StatusOK, report)
}
