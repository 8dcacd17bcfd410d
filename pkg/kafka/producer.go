// Package kafka publishes JSON messages to a Kafka topic through
// segmentio/kafka-go.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/resilience"
)

// Message is one keyed record. Key picks the partition, Value is encoded as
// JSON.
type Message struct {
	Key   string
	Value any
}

// writer is the part of kafka.Writer the producer uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes messages to the configured topic synchronously.
type Producer struct {
	writer writer
	logger *slog.Logger
}

// NewProducer creates a Producer for cfg.Topic. No connection is made until
// the first write.
func NewProducer(cfg config.KafkaConfig) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		MaxAttempts:  3,
		RequiredAcks: kafka.RequireAll,
	}
	return newProducer(w, cfg.Topic)
}

func newProducer(w writer, topic string) *Producer {
	return &Producer{
		writer: w,
		logger: slog.Default().With("component", "kafka-producer", "topic", topic),
	}
}

func encode(msgs []Message) ([]kafka.Message, error) {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		value, err := json.Marshal(m.Value)
		if err != nil {
			return nil, resilience.Permanent(fmt.Errorf("marshaling message value: %w", err))
		}
		out = append(out, kafka.Message{Key: []byte(m.Key), Value: value})
	}
	return out, nil
}

// Publish writes msgs in one call.
func (p *Producer) Publish(ctx context.Context, msgs ...Message) error {
	encoded, err := encode(msgs)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, encoded...); err != nil {
		p.logger.Error("failed to publish", "count", len(encoded), "error", err)
		return fmt.Errorf("publishing to kafka: %w", err)
	}
	p.logger.Debug("published", "count", len(encoded))
	return nil
}

// Close flushes pending writes and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
