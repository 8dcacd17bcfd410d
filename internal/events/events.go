// Package events announces pipeline progress to other systems. A run emits
// one event when it starts, one per finished phase and one when it ends.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/ngramcount/pkg/resilience"
)

// Type classifies an Event.
type Type string

const (
	RunStarted     Type = "run_started"
	PhaseCompleted Type = "phase_completed"
	RunFinished    Type = "run_finished"
)

// Event is the JSON payload published per progress step.
type Event struct {
	RunID    string    `json:"run_id"`
	Type     Type      `json:"type"`
	Kind     string    `json:"kind,omitempty"`
	Phase    string    `json:"phase,omitempty"`
	Wave     int       `json:"wave,omitempty"`
	Patterns []string  `json:"patterns,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Publisher delivers events. Implementations must be safe for concurrent
// use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Kafka publishes events keyed by run ID, so one run's events stay ordered
// within a partition. Failed writes are retried with backoff.
type Kafka struct {
	producer *kafka.Producer
	backoff  resilience.Backoff
}

// NewKafka creates a publisher for cfg.Topic.
func NewKafka(cfg config.KafkaConfig) *Kafka {
	return &Kafka{producer: kafka.NewProducer(cfg), backoff: resilience.DefaultBackoff()}
}

func (k *Kafka) Publish(ctx context.Context, e Event) error {
	return resilience.Retry(ctx, "publish "+string(e.Type), k.backoff, func(ctx context.Context) error {
		return k.producer.Publish(ctx, kafka.Message{Key: e.RunID, Value: e})
	})
}

func (k *Kafka) Close() error {
	return k.producer.Close()
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events returns a copy of what was published.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
