package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// KafkaConfig holds the producer settings for the event topic.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchTimeout time.Duration
}

// messageWriter is the subset of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by auction id, so all
// events of one auction land on one partition in commit order.
type KafkaPublisher struct {
	writer messageWriter
}

var _ domain.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a synchronous producer that waits for all
// in-sync replicas.
func NewKafkaPublisher(cfg KafkaConfig) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: cfg.BatchTimeout,
	}
	return &KafkaPublisher{writer: w}
}

// Publish writes events as one batch.
func (p *KafkaPublisher) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("events: marshal %s: %w", ev.Type, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(ev.AuctionID),
			Value: data,
			Time:  ev.At,
			Headers: []kafka.Header{
				{Key: "type", Value: []byte(ev.Type)},
			},
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("events: kafka write: %w", err)
	}
	return nil
}

// Close flushes and closes the producer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
