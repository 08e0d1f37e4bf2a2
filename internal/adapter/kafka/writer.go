// Package kafka publishes flight-set snapshots to a sink topic so downstream
// consumers can follow the feed without polling this service.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/rookhaven/flightmap/internal/config"
	"github.com/rookhaven/flightmap/internal/domain"
)

// Writer produces flight snapshots to a Kafka topic.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishSnapshot serializes and publishes one refresh's flight set in a
// single WriteMessages call, one message per flight keyed by flight ID so a
// compacted topic converges on the latest position per aircraft.
func (w *Writer) PublishSnapshot(ctx context.Context, generation uint64, flights []domain.Flight) error {
	if len(flights) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(flights))
	for i := range flights {
		msg, err := serializeToMessage(generation, flights[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	return w.writer.WriteMessages(ctx, msgs...)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Flight into a Kafka message.
func serializeToMessage(generation uint64, flight domain.Flight) (kafkago.Message, error) {
	data, err := json.Marshal(flight)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize flight: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(flight.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "generation", Value: []byte(strconv.FormatUint(generation, 10))},
			{Key: "observed_at", Value: []byte(flight.ObservedAt.Format(time.RFC3339))},
		},
	}, nil
}
