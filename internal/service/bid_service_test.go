package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

func TestSubmitBidProxyCompetition(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a := h.english(t, 1000, nil)

	res, err := h.bids.SubmitBid(ctx, bid(a.ID, "s1", "alice", domain.ProxyBid{Ceiling: dec(1500)}))
	assert.NoError(t, err)
	check.Equal(t, "1025", res.NewCurrentPrice.String())
	check.Equal(t, "alice", res.LeaderID)

	res, err = h.bids.SubmitBid(ctx, bid(a.ID, "s2", "bob", domain.ManualBid{Amount: dec(1200)}))
	assert.NoError(t, err)
	check.Equal(t, "1225", res.NewCurrentPrice.String())
	check.Equal(t, "alice", res.LeaderID)
	check.True(t, res.CounterBidTriggered)
	check.Equal(t, "bob", res.OutbidBidderID)

	res, err = h.bids.SubmitBid(ctx, bid(a.ID, "s3", "carol", domain.ProxyBid{Ceiling: dec(2000)}))
	assert.NoError(t, err)
	check.Equal(t, "1525", res.NewCurrentPrice.String())
	check.Equal(t, "carol", res.LeaderID)
	check.Equal(t, "alice", res.OutbidBidderID)
	check.Equal(t, "1550", res.MinimumNextBid.String())

	stored, err := h.store.GetByID(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, "1525", stored.CurrentPrice.String())
	check.Equal(t, 3, stored.TotalBids)
	check.Equal(t, 3, stored.UniqueBidders)
	check.Equal(t, int64(4), stored.Version)

	bids, err := h.auctions.ListBids(ctx, a.ID, domain.ListOpts{})
	assert.NoError(t, err)
	assert.Equal(t, 3, len(bids))
	statuses := map[string]domain.BidStatus{}
	for _, b := range bids {
		statuses[b.BidderID] = b.Status
	}
	check.Equal(t, map[string]domain.BidStatus{
		"alice": domain.BidStatusOutbid,
		"bob":   domain.BidStatusOutbid,
		"carol": domain.BidStatusWinning,
	}, statuses)

	check.Equal(t, []domain.EventType{
		domain.EventBidAccepted,
		domain.EventBidAccepted, domain.EventBidOutbid,
		domain.EventBidAccepted, domain.EventBidOutbid,
	}, h.published.types())

	snap, err := h.cache.Get(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, "carol", snap.LeaderID)
	check.Equal(t, "1550", snap.MinimumNextBid.String())
	check.Equal(t, int64(4), snap.Version)
}

func TestSubmitBidRejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a := h.english(t, 1000, nil)

	_, err := h.bids.SubmitBid(ctx, bid(a.ID, "s1", "alice", domain.ManualBid{Amount: dec(1100)}))
	assert.NoError(t, err)

	cases := []struct {
		name string
		req  domain.BidRequest
		kind domain.ErrorKind
	}{
		{"below floor", bid(a.ID, "s2", "bob", domain.ManualBid{Amount: dec(1110)}), domain.KindBidTooLow},
		{"same submission", bid(a.ID, "s1", "bob", domain.ManualBid{Amount: dec(2000)}), domain.KindDuplicateSubmission},
		{"leader without higher ceiling", bid(a.ID, "s3", "alice", domain.ManualBid{Amount: dec(1100)}), domain.KindSelfOutbid},
		{"ceiling below amount", bid(a.ID, "s4", "bob", domain.ProxyBid{Amount: dec(1500), Ceiling: dec(1400)}), domain.KindInvalidCeiling},
		{"unknown auction", bid("missing", "s5", "bob", domain.ManualBid{Amount: dec(2000)}), domain.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.bids.SubmitBid(ctx, tc.req)
			assert.Error(t, err)
			check.Equal(t, tc.kind, domain.KindOf(err))
			check.False(t, domain.Retryable(err))
		})
	}

	var be *domain.BidError
	_, err = h.bids.SubmitBid(ctx, bid(a.ID, "s6", "bob", domain.ManualBid{Amount: dec(1110)}))
	assert.True(t, errors.As(err, &be))
	check.Equal(t, "1125", be.Minimum.String())

	stored, err := h.store.GetByID(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, 1, stored.TotalBids)
	check.Equal(t, "1100", stored.CurrentPrice.String())
}

func TestSubmitBidDedupShortCircuits(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	dedup := NewDedup(time.Minute, h.clock)
	h.bids.WithDedup(dedup)
	a := h.english(t, 1000, nil)

	_, err := h.bids.SubmitBid(ctx, bid(a.ID, "retry-me", "alice", domain.ManualBid{Amount: dec(1100)}))
	assert.NoError(t, err)
	check.True(t, dedup.Seen("retry-me"))

	_, err = h.bids.SubmitBid(ctx, bid(a.ID, "retry-me", "alice", domain.ManualBid{Amount: dec(1100)}))
	check.True(t, errors.Is(err, domain.ErrDuplicateSubmission))

	// A rejected submission is not remembered, so the client may fix and resend.
	_, err = h.bids.SubmitBid(ctx, bid(a.ID, "too-low", "bob", domain.ManualBid{Amount: dec(1101)}))
	check.True(t, errors.Is(err, domain.ErrBidTooLow))
	check.False(t, dedup.Seen("too-low"))
}

type stubLeases struct {
	err      error
	acquired []string
	released int
}

func (l *stubLeases) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired = append(l.acquired, key)
	return func() { l.released++ }, nil
}

func TestSubmitBidLease(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a := h.english(t, 1000, nil)

	leases := &stubLeases{}
	h.bids.WithLease(leases, 5*time.Second)
	_, err := h.bids.SubmitBid(ctx, bid(a.ID, "s1", "alice", domain.ManualBid{Amount: dec(1100)}))
	assert.NoError(t, err)
	check.Equal(t, []string{"auction:" + a.ID}, leases.acquired)
	check.Equal(t, 1, leases.released)

	leases.err = fmt.Errorf("%w: %w", domain.ErrLockContention, domain.ErrLockHeld)
	_, err = h.bids.SubmitBid(ctx, bid(a.ID, "s2", "bob", domain.ManualBid{Amount: dec(1500)}))
	check.Equal(t, domain.KindLockContention, domain.KindOf(err))
	check.True(t, domain.Retryable(err))

	stored, err := h.store.GetByID(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, 1, stored.TotalBids)
}

func TestSubmitBidDutchAcceptance(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a, err := h.auctions.Create(ctx, CreateAuctionParams{
		SellerID:      "seller-1",
		Category:      "watches",
		Mode:          domain.AuctionModeDutch,
		StartingPrice: dec(1000),
		ReservePrice:  decPtr(200),
		EndTime:       t0.Add(80 * time.Minute),
	})
	assert.NoError(t, err)

	h.clock.Increment(40 * time.Minute)
	price, err := h.auctions.GetCurrentDutchPrice(ctx, a.ID, h.clock.Now())
	assert.NoError(t, err)
	check.Equal(t, "600", price.String())

	_, err = h.bids.SubmitBid(ctx, bid(a.ID, "s1", "alice", domain.ManualBid{Amount: dec(550)}))
	check.Equal(t, domain.KindBidTooLow, domain.KindOf(err))

	res, err := h.bids.SubmitBid(ctx, bid(a.ID, "s2", "bob", domain.ManualBid{Amount: dec(650)}))
	assert.NoError(t, err)
	check.True(t, res.Closed)
	check.Equal(t, "600", res.NewCurrentPrice.String())

	stored, err := h.store.GetByID(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionStatusEnded, stored.Status)
	check.Equal(t, "bob", stored.WinnerID)

	_, err = h.bids.SubmitBid(ctx, bid(a.ID, "s3", "carol", domain.ManualBid{Amount: dec(900)}))
	check.Equal(t, domain.KindAuctionNotActive, domain.KindOf(err))
}

// Concurrent submissions against one auction must serialize: one leader,
// gap-free sequence numbers, and the highest bidder winning.
func TestSubmitBidConcurrentBidders(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a := h.english(t, 1000, func(p *CreateAuctionParams) { p.EndTime = t0.Add(24 * time.Hour) })

	const n = 24
	order := rand.Perm(n)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
		failures []error
	)
	for _, i := range order {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := bid(a.ID, fmt.Sprintf("sub-%d", i), fmt.Sprintf("bidder-%02d", i),
				domain.ManualBid{Amount: dec(int64(1050 + i*50))})
			_, err := h.bids.SubmitBid(ctx, req)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				accepted++
			case domain.KindOf(err) != domain.KindBidTooLow:
				failures = append(failures, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, len(failures))

	bids, err := h.auctions.ListBids(ctx, a.ID, domain.ListOpts{})
	assert.NoError(t, err)
	check.Equal(t, accepted, len(bids))

	winning := 0
	for i, b := range bids {
		check.Equal(t, int64(i+1), b.Seq)
		if b.Status == domain.BidStatusWinning {
			winning++
			check.Equal(t, fmt.Sprintf("bidder-%02d", n-1), b.BidderID)
		}
	}
	check.Equal(t, 1, winning)

	stored, err := h.store.GetByID(ctx, a.ID)
	assert.NoError(t, err)
	check.Equal(t, accepted, stored.TotalBids)
	check.Equal(t, int64(accepted+1), stored.Version)

	leader, err := h.store.Bids().GetWinning(ctx, a.ID)
	assert.NoError(t, err)
	check.True(t, leader.Amount.Equal(stored.CurrentPrice))
}

func TestSubmitBidExtendsNearClose(t *testing.T) {
	ctx := context.Background()
	h := newHarness()
	a := h.english(t, 1000, nil)

	h.clock.Increment(57 * time.Minute)
	res, err := h.bids.SubmitBid(ctx, bid(a.ID, "s1", "alice", domain.ManualBid{Amount: dec(1100)}))
	assert.NoError(t, err)
	check.True(t, res.Extended)
	check.Equal(t, a.EndTime.Add(5*time.Minute), res.NewEndTime)
	check.Equal(t, domain.EventAuctionExtended, h.published.types()[1])
}
