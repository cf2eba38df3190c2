package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
)

// #region kafka-dispatcher

// KafkaDispatcher publishes envelopes to a Kafka topic, keyed by trigger key
// so all escalations for one entity land on the same partition.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

// NewKafkaDispatcher builds a dispatcher for the given brokers and topic.
func NewKafkaDispatcher(brokers, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(brokers, ",")...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// Dispatch serializes the envelope as JSON and produces it.
func (d *KafkaDispatcher) Dispatch(ctx context.Context, env Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(env.TriggerKey),
		Value: payload,
		Time:  env.DispatchedAt,
	}
	if err := d.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("produce fire event: %w", err)
	}
	return nil
}

// Close shuts down the underlying writer.
func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}

// #endregion kafka-dispatcher
