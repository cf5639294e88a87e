package domain

import (
	"context"
	"time"
)

// AuctionCache holds lock-free display snapshots. Readers tolerate staleness.
type AuctionCache interface {
	Set(ctx context.Context, snap AuctionSnapshot) error
	Get(ctx context.Context, auctionID string) (AuctionSnapshot, error)
	Invalidate(ctx context.Context, auctionID string) error
}

// RankingCache stores the discovery ranking of live auctions.
type RankingCache interface {
	Replace(ctx context.Context, ranked []RankedAuction) error
	Top(ctx context.Context, n int) ([]RankedAuction, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a Redis stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// EventPublisher delivers committed domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events []Event) error
}
