package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier publishes violation events to a Kafka topic, keyed by
// account so one account's alerts stay ordered within a partition.
type KafkaNotifier struct {
	topic  string
	writer messageWriter
}

// NewKafkaNotifier creates a notifier writing to topic on brokers.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaNotifier{topic: topic, writer: w}
}

func (k *KafkaNotifier) Name() string { return "kafka" }

func (k *KafkaNotifier) Send(ctx context.Context, alert Alert) error {
	value, err := alert.Event.JSON()
	if err != nil {
		return fmt.Errorf("kafka: marshal: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(alert.Event.AccountID),
		Value: value,
		Time:  alert.Event.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(alert.Event.Type)},
			{Key: "event_id", Value: []byte(alert.Event.ID)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", k.topic, err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
