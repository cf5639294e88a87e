package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

type published struct {
	channel string
	payload []byte
}

type mockBus struct {
	mu        sync.Mutex
	published []published
	streamed  map[string][][]byte
	failPub   error
}

func (m *mockBus) Publish(_ context.Context, channel string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPub != nil {
		return m.failPub
	}
	m.published = append(m.published, published{channel, payload})
	return nil
}

func (m *mockBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not implemented")
}

func (m *mockBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.streamed == nil {
		m.streamed = map[string][][]byte{}
	}
	m.streamed[stream] = append(m.streamed[stream], payload)
	return nil
}

func (m *mockBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

func sampleEvents() []domain.Event {
	at := time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)
	return []domain.Event{
		{Type: domain.EventBidAccepted, AuctionID: "a1", BidID: "b2", BidderID: "bob", Amount: decimal.NewFromInt(1025), At: at},
		{Type: domain.EventBidOutbid, AuctionID: "a1", BidID: "b1", BidderID: "alice", CounterpartyID: "bob", Amount: decimal.NewFromInt(1025), At: at},
	}
}

func TestBusPublisher(t *testing.T) {
	bus := &mockBus{}
	p := NewBusPublisher(bus, DefaultStream)

	assert.NoError(t, p.Publish(context.Background(), sampleEvents()))

	assert.Equal(t, 2, len(bus.published))
	check.Equal(t, "ch:auction:a1", bus.published[0].channel)
	check.Equal(t, 2, len(bus.streamed[DefaultStream]))

	var ev domain.Event
	assert.NoError(t, json.Unmarshal(bus.published[1].payload, &ev))
	check.Equal(t, domain.EventBidOutbid, ev.Type)
	check.Equal(t, "bob", ev.CounterpartyID)
	check.Equal(t, "1025", ev.Amount.String())
}

func TestBusPublisherJoinsErrors(t *testing.T) {
	boom := errors.New("redis down")
	p := NewBusPublisher(&mockBus{failPub: boom}, "")

	err := p.Publish(context.Background(), sampleEvents())
	check.True(t, errors.Is(err, boom))
}

type countingSink struct {
	n   int
	err error
}

func (c *countingSink) Publish(_ context.Context, events []domain.Event) error {
	c.n += len(events)
	return c.err
}

func TestFanoutContinuesPastFailure(t *testing.T) {
	boom := errors.New("kafka down")
	first := &countingSink{err: boom}
	second := &countingSink{}

	err := Fanout{first, second}.Publish(context.Background(), sampleEvents())
	check.True(t, errors.Is(err, boom))
	check.Equal(t, 2, first.n)
	check.Equal(t, 2, second.n)

	check.NoError(t, Fanout{first}.Publish(context.Background(), nil))
}

type mockWriter struct {
	msgs []kafka.Message
}

func (m *mockWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	m.msgs = append(m.msgs, msgs...)
	return nil
}

func (m *mockWriter) Close() error { return nil }

func TestKafkaPublisherKeysByAuction(t *testing.T) {
	w := &mockWriter{}
	p := &KafkaPublisher{writer: w}

	assert.NoError(t, p.Publish(context.Background(), sampleEvents()))
	assert.Equal(t, 2, len(w.msgs))
	for _, m := range w.msgs {
		check.Equal(t, "a1", string(m.Key))
	}
	check.Equal(t, "bid_outbid", string(w.msgs[1].Headers[0].Value))
}
