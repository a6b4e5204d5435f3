package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/quake-exposure-service/internal/config"
	"github.com/couchcryptid/quake-exposure-service/internal/exposure"
)

// Writer produces scored city records to a Kafka topic.
// It implements pipeline.Publisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured results topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// resultMessage is the value written for each scored city.
type resultMessage struct {
	exposure.ScoredRecord
	Rank        int       `json:"rank"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Publish writes one message per scored city, ranked by score, in a single
// WriteMessages call. Reports without results are skipped.
func (w *Writer) Publish(ctx context.Context, report exposure.Report) (int, error) {
	ranked := report.Ranked(0)
	if len(ranked) == 0 {
		w.logger.Debug("no results to publish", "reason", report.Reason)
		return 0, nil
	}
	msgs := make([]kafkago.Message, len(ranked))
	for i := range ranked {
		msg, err := serializeToMessage(report, ranked[i], i+1)
		if err != nil {
			return 0, err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, fmt.Errorf("write results: %w", err)
	}
	return len(msgs), nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a scored record into a Kafka message keyed by
// city name so successive snapshots for one city share a partition.
func serializeToMessage(report exposure.Report, rec exposure.ScoredRecord, rank int) (kafkago.Message, error) {
	data, err := json.Marshal(resultMessage{
		ScoredRecord: rec,
		Rank:         rank,
		GeneratedAt:  report.GeneratedAt,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize exposure record %q: %w", rec.CityName, err)
	}
	return kafkago.Message{
		Key:   []byte(rec.CityName),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "reason", Value: []byte(report.Reason)},
			{Key: "radius_km", Value: []byte(strconv.FormatFloat(report.RadiusKM, 'f', -1, 64))},
			{Key: "generated_at", Value: []byte(report.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}
