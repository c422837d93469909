package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"go.ngs.io/cyclone-tracker/internal/domain"
)

// TrackPointEvent is the message value published for each track point.
type TrackPointEvent struct {
	Run         string    `json:"run"`
	Step        int       `json:"step"`
	GeneratedAt time.Time `json:"generated_at"`
	domain.TrackPoint
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes track points to a Kafka topic.
// It implements usecase.TrackPublisher.
type Writer struct {
	writer messageWriter
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for topic.
func NewWriter(brokers []string, topic string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// PublishTrack writes one message per point in a single WriteMessages call.
func (w *Writer) PublishTrack(ctx context.Context, run string, generatedAt time.Time, points []domain.TrackPoint) error {
	if len(points) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(points))
	for i := range points {
		msg, err := serializeToMessage(TrackPointEvent{
			Run:         run,
			Step:        i,
			GeneratedAt: generatedAt,
			TrackPoint:  points[i],
		})
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish track %s: %w", run, err)
	}
	w.logger.Debug("published track", "run", run, "points", len(points))
	return nil
}

// Close flushes and closes the producer.
func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a track point event into a Kafka message
// keyed by run so a run's points stay on one partition.
func serializeToMessage(event TrackPointEvent) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize track point: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.Run),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "intensity_category", Value: []byte(event.Category.String())},
			{Key: "valid_time", Value: []byte(event.Time.UTC().Format(time.RFC3339))},
		},
	}, nil
}
