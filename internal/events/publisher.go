// Package events delivers committed engine events to downstream consumers:
// the Redis bus that feeds websocket hubs and an optional Kafka topic.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// DefaultStream is the Redis stream every event is appended to.
const DefaultStream = "stream:auction:events"

// BusPublisher publishes each event on its auction's pub/sub channel and
// appends it to a replayable stream.
type BusPublisher struct {
	bus    domain.SignalBus
	stream string
}

var _ domain.EventPublisher = (*BusPublisher)(nil)

// NewBusPublisher creates a BusPublisher. An empty stream disables the
// stream append.
func NewBusPublisher(bus domain.SignalBus, stream string) *BusPublisher {
	return &BusPublisher{bus: bus, stream: stream}
}

// Publish sends every event and returns the joined failures.
func (p *BusPublisher) Publish(ctx context.Context, events []domain.Event) error {
	var errs []error
	for _, ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			errs = append(errs, fmt.Errorf("events: marshal %s: %w", ev.Type, err))
			continue
		}
		if err := p.bus.Publish(ctx, ev.Channel(), payload); err != nil {
			errs = append(errs, err)
		}
		if p.stream == "" {
			continue
		}
		if err := p.bus.StreamAppend(ctx, p.stream, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fanout publishes to every sink, continuing past failures.
type Fanout []domain.EventPublisher

var _ domain.EventPublisher = Fanout(nil)

func (f Fanout) Publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
