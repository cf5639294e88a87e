package service

import (
	"context"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

func newTestSweeper(h *harness, scoring *ScoringService, dedup *Dedup, rankEvery time.Duration) *Sweeper {
	return NewSweeper(h.store, h.cache, h.published, scoring, dedup,
		SweeperConfig{Interval: time.Second, BatchSize: 10, Concurrency: 2, RankEvery: rankEvery},
		h.clock, discardLogger())
}

func TestSweeperLifecycle(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	sw := newTestSweeper(h, nil, nil, 0)

	scheduled := h.english(t, 1000, func(p *CreateAuctionParams) {
		p.StartTime = t0.Add(time.Minute)
		p.EndTime = t0.Add(time.Hour)
	})
	reserved := h.english(t, 1000, func(p *CreateAuctionParams) {
		p.ReservePrice = decPtr(5000)
		p.EndTime = t0.Add(30 * time.Minute)
	})
	check.Equal(t, domain.AuctionStatusScheduled, scheduled.Status)

	n, err := sw.Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 0, n)

	h.clock.Increment(2 * time.Minute)
	n, err = sw.Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 1, n)

	got, err := h.store.GetByID(ctx, scheduled.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionStatusActive, got.Status)

	_, err = h.bids.SubmitBid(ctx, bid(scheduled.ID, "s1", "alice", domain.ManualBid{Amount: dec(1100)}))
	assert.NoError(t, err)
	_, err = h.bids.SubmitBid(ctx, bid(reserved.ID, "s2", "bob", domain.ManualBid{Amount: dec(1100)}))
	assert.NoError(t, err)

	h.clock.Increment(time.Hour)
	n, err = sw.Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 2, n)

	got, err = h.store.GetByID(ctx, scheduled.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionStatusEnded, got.Status)
	check.Equal(t, "alice", got.WinnerID)

	got, err = h.store.GetByID(ctx, reserved.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionStatusEnded, got.Status)
	check.Equal(t, "", got.WinnerID)

	_, err = h.bids.SubmitBid(ctx, bid(scheduled.ID, "s3", "carol", domain.ManualBid{Amount: dec(5000)}))
	check.Equal(t, domain.KindAuctionNotActive, domain.KindOf(err))

	closed := 0
	for _, typ := range h.published.types() {
		if typ == domain.EventAuctionClosed {
			closed++
		}
	}
	check.Equal(t, 2, closed)

	snap, err := h.cache.Get(ctx, scheduled.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionStatusEnded, snap.Status)
}

func TestSweeperActivatesAndClosesInOnePass(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	sw := newTestSweeper(h, nil, nil, 0)

	a := h.english(t, 1000, func(p *CreateAuctionParams) {
		p.StartTime = t0.Add(time.Minute)
		p.EndTime = t0.Add(2 * time.Minute)
	})

	h.clock.Increment(time.Hour)
	changed, err := sw.Advance(ctx, a.ID)
	assert.NoError(t, err)
	check.True(t, changed)

	got, err := h.store.GetByID(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionStatusEnded, got.Status)
	check.Equal(t, []domain.EventType{domain.EventAuctionActivated, domain.EventAuctionClosed}, h.published.types())

	changed, err = sw.Advance(ctx, a.ID)
	assert.NoError(t, err)
	check.False(t, changed)
}

func TestSweeperHousekeeping(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	dedup := NewDedup(time.Minute, h.clock)
	ranking := &memRanking{}
	scoring := NewScoringService(h.store, nil, ranking, 0, h.clock, discardLogger())
	sw := newTestSweeper(h, scoring, dedup, 10*time.Second)

	h.english(t, 1000, nil)
	dedup.Remember("old")

	h.clock.Increment(2 * time.Minute)
	_, err := sw.Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 0, dedup.Len())
	check.Equal(t, 1, ranking.replaced)

	_, err = sw.Sweep(ctx)
	assert.NoError(t, err)
	check.Equal(t, 1, ranking.replaced)
}
