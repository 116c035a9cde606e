package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"portfolio-clearinghouse/internal/logger"
	"portfolio-clearinghouse/internal/model"

	"github.com/segmentio/kafka-go"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaConsumer ingests trade files published to a Kafka topic. The message
// key (or a "format" header) names the file format; the value is the file
// content.
type KafkaConsumer struct {
	reader  messageReader
	service *Service
}

// NewKafkaConsumer creates a consumer-group reader on topic.
func NewKafkaConsumer(brokers []string, groupID, topic string, service *Service) *KafkaConsumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &KafkaConsumer{reader: r, service: service}
}

// Run consumes until ctx is cancelled. Bad messages are logged and skipped.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	slog.Info("trade consumer started", "component", "kafka-ingest")
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			slog.Error("consume failed", "component", "kafka-ingest", "error", err)
			return fmt.Errorf("kafka read: %w", err)
		}
		c.handle(ctx, msg)
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	ctx = logger.WithTraceID(ctx, logger.NewTraceID())
	attrs := append(logger.LogWithTrace(ctx),
		"component", "kafka-ingest",
		"partition", msg.Partition,
		"offset", msg.Offset)

	format, ok := messageFormat(msg)
	if !ok {
		slog.Warn("skipping message with unknown format", append(attrs, "key", string(msg.Key))...)
		return
	}

	res, err := c.service.Ingest(ctx, format, bytes.NewReader(msg.Value))
	if err != nil {
		slog.Error("ingest failed", append(attrs, "error", err)...)
		return
	}
	slog.Debug("message ingested", append(attrs, "accepted", res.Accepted, "rejected", res.Rejected)...)
}

func messageFormat(msg kafka.Message) (model.FileFormat, bool) {
	for _, h := range msg.Headers {
		if h.Key == "format" {
			return model.ParseFileFormat(string(h.Value))
		}
	}
	return model.ParseFileFormat(string(msg.Key))
}

// Close closes the reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
