package alert

import (
	"context"
	"encoding/json"
	"time"

	"github.com/vaibhav071104/vaultguard/internal/port"

	"github.com/segmentio/kafka-go"
)

// KafkaSink publishes alerts to a Kafka topic for downstream fraud tooling.
type KafkaSink struct {
	writer *kafka.Writer
}

// NewKafkaSink creates a Kafka-backed alert sink.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
}

type alertEvent struct {
	Recipient string    `json:"recipient"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	EmittedAt time.Time `json:"emitted_at"`
}

// Notify publishes one alert event keyed by recipient, so alerts for the
// same recipient stay ordered within a partition.
func (s *KafkaSink) Notify(ctx context.Context, recipient, subject, body string) error {
	ctx, span := tracer.Start(ctx, "KafkaSink.Notify")
	defer span.End()

	value, err := json.Marshal(alertEvent{
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
		EmittedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(recipient),
		Value: value,
	})
}

// Close flushes and closes the underlying writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

var _ port.AlertSink = (*KafkaSink)(nil)
