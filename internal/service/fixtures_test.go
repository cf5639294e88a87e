package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/bidding"
	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/alanyoungcy/auctionengine/internal/store/memory"
)

var t0 = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, events []domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
	return nil
}

func (p *recordingPublisher) types() []domain.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type mapCache struct {
	mu    sync.Mutex
	snaps map[string]domain.AuctionSnapshot
}

func newMapCache() *mapCache {
	return &mapCache{snaps: map[string]domain.AuctionSnapshot{}}
}

func (c *mapCache) Set(_ context.Context, snap domain.AuctionSnapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.snaps[snap.AuctionID]; ok && cur.Version > snap.Version {
		return nil
	}
	c.snaps[snap.AuctionID] = snap
	return nil
}

func (c *mapCache) Get(_ context.Context, id string) (domain.AuctionSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snaps[id]
	if !ok {
		return domain.AuctionSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (c *mapCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snaps, id)
	return nil
}

// harness wires the services over one in-memory store and one fake clock.
type harness struct {
	clock     *fakeclock.FakeClock
	store     *memory.Store
	cache     *mapCache
	published *recordingPublisher
	bids      *BidService
	auctions  *AuctionService
}

func newHarness() *harness {
	clk := fakeclock.NewFakeClock(t0)
	store := memory.New(0)
	cache := newMapCache()
	pub := &recordingPublisher{}
	logger := discardLogger()

	return &harness{
		clock:     clk,
		store:     store,
		cache:     cache,
		published: pub,
		bids: NewBidService(store, bidding.NewResolver(bidding.DefaultExtensionPolicy()), clk, logger).
			WithCache(cache).
			WithPublisher(pub),
		auctions: NewAuctionService(store, store.Bids(), cache, pub, clk, logger),
	}
}

func (h *harness) english(t *testing.T, starting int64, mutate func(*CreateAuctionParams)) domain.Auction {
	t.Helper()
	p := CreateAuctionParams{
		SellerID:      "seller-1",
		Category:      "Art",
		StartingPrice: dec(starting),
		EndTime:       t0.Add(time.Hour),
	}
	if mutate != nil {
		mutate(&p)
	}
	a, err := h.auctions.Create(context.Background(), p)
	assert.NoError(t, err)
	return a
}

func bid(auctionID, submission, bidder string, order domain.BidOrder) domain.BidRequest {
	return domain.BidRequest{SubmissionID: submission, AuctionID: auctionID, BidderID: bidder, Order: order}
}
