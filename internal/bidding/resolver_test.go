package bidding

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

var testNow = time.Date(2026, 4, 2, 15, 0, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func testResolver() *Resolver {
	n := 0
	return &Resolver{
		Policy: ExtensionPolicy{Extension: 2 * time.Minute, Threshold: 5 * time.Minute, MaxExtensions: 3},
		NewID: func() string {
			n++
			return fmt.Sprintf("bid-%d", n)
		},
	}
}

func englishAuction(current int64) domain.Auction {
	return domain.Auction{
		ID:            "auc-1",
		SellerID:      "seller",
		Category:      "art",
		Mode:          domain.AuctionModeEnglish,
		Status:        domain.AuctionStatusActive,
		StartingPrice: dec(current),
		CurrentPrice:  dec(current),
		StartTime:     testNow.Add(-time.Hour),
		EndTime:       testNow.Add(time.Hour),
		Version:       1,
	}
}

func leaderBid(bidder string, amount int64, ceiling *decimal.Decimal) *domain.Bid {
	return &domain.Bid{
		ID:         "leader-bid",
		AuctionID:  "auc-1",
		BidderID:   bidder,
		Amount:     dec(amount),
		MaxAutoBid: ceiling,
		IsAutoBid:  ceiling != nil,
		Status:     domain.BidStatusWinning,
		Seq:        1,
	}
}

func request(bidder string, order domain.BidOrder) domain.BidRequest {
	return domain.BidRequest{SubmissionID: "sub-" + bidder, AuctionID: "auc-1", BidderID: bidder, Order: order}
}

func TestResolveFirstBid(t *testing.T) {
	a := englishAuction(100)
	a.TotalBids, a.UniqueBidders = 0, 0

	res, err := testResolver().Resolve(Snapshot{Auction: a}, request("alice", domain.ManualBid{Amount: dec(180)}), testNow)
	assert.NoError(t, err)

	check.True(t, res.Result.Accepted)
	check.Equal(t, "alice", res.Result.LeaderID)
	check.Equal(t, "180", res.Result.NewCurrentPrice.String())
	check.Equal(t, "185", res.Result.MinimumNextBid.String())
	check.Equal(t, 1, res.Auction.TotalBids)
	check.Equal(t, 1, res.Auction.UniqueBidders)
	check.Equal(t, int64(2), res.Auction.Version)
	assert.NotNil(t, res.Insert)
	check.Equal(t, domain.BidStatusWinning, res.Insert.Status)
	check.Equal(t, int64(1), res.Insert.Seq)
	check.Equal(t, 0, len(res.Updates))
	check.Equal(t, domain.EventBidAccepted, res.Events[0].Type)
}

func TestResolveCeilingOnlyProxyShowsFloor(t *testing.T) {
	a := englishAuction(100)

	res, err := testResolver().Resolve(Snapshot{Auction: a}, request("alice", domain.ProxyBid{Ceiling: dec(900)}), testNow)
	assert.NoError(t, err)

	check.Equal(t, "105", res.Result.NewCurrentPrice.String())
	check.True(t, res.Insert.IsAutoBid)
	check.Equal(t, "900", res.Insert.Ceiling().String())
}

func TestResolveChallengerBeatsCeiling(t *testing.T) {
	a := englishAuction(900)
	a.TotalBids, a.UniqueBidders = 1, 1
	leader := leaderBid("alice", 900, decPtr(1000))

	res, err := testResolver().Resolve(Snapshot{Auction: a, Leader: leader},
		request("bob", domain.ProxyBid{Ceiling: dec(1200)}), testNow)
	assert.NoError(t, err)

	check.Equal(t, "1025", res.Result.NewCurrentPrice.String())
	check.Equal(t, "bob", res.Result.LeaderID)
	check.Equal(t, "alice", res.Result.OutbidBidderID)
	check.False(t, res.Result.CounterBidTriggered)

	check.Equal(t, domain.BidStatusWinning, res.Insert.Status)
	check.Equal(t, "1025", res.Insert.Amount.String())
	check.Equal(t, "1200", res.Insert.Ceiling().String())

	assert.Equal(t, 1, len(res.Updates))
	check.Equal(t, "leader-bid", res.Updates[0].ID)
	check.Equal(t, domain.BidStatusOutbid, res.Updates[0].Status)
	check.Equal(t, 2, res.Auction.TotalBids)
	check.Equal(t, 2, res.Auction.UniqueBidders)
}

func TestResolveManualChallengerKeepsCeiling(t *testing.T) {
	a := englishAuction(900)
	leader := leaderBid("alice", 900, decPtr(1000))

	res, err := testResolver().Resolve(Snapshot{Auction: a, Leader: leader},
		request("bob", domain.ManualBid{Amount: dec(1200)}), testNow)
	assert.NoError(t, err)

	check.Equal(t, "1025", res.Insert.Amount.String())
	check.Equal(t, "1200", res.Insert.Ceiling().String())
	check.False(t, res.Insert.IsAutoBid)
}

func TestResolveLeaderProxyCounters(t *testing.T) {
	a := englishAuction(1000)
	leader := leaderBid("alice", 1000, decPtr(2000))

	res, err := testResolver().Resolve(Snapshot{Auction: a, Leader: leader},
		request("bob", domain.ManualBid{Amount: dec(1100)}), testNow)
	assert.NoError(t, err)

	check.Equal(t, "1125", res.Result.NewCurrentPrice.String())
	check.Equal(t, "alice", res.Result.LeaderID)
	check.True(t, res.Result.CounterBidTriggered)
	check.Equal(t, "bob", res.Result.OutbidBidderID)

	check.Equal(t, domain.BidStatusOutbid, res.Insert.Status)
	check.Equal(t, "1100", res.Insert.Amount.String())

	assert.Equal(t, 1, len(res.Updates))
	check.Equal(t, domain.BidStatusWinning, res.Updates[0].Status)
	check.Equal(t, "1125", res.Updates[0].Amount.String())
	check.Equal(t, "2000", res.Updates[0].Ceiling().String())

	var outbid *domain.Event
	for i := range res.Events {
		if res.Events[i].Type == domain.EventBidOutbid {
			outbid = &res.Events[i]
		}
	}
	assert.NotNil(t, outbid)
	check.Equal(t, "bob", outbid.BidderID)
	check.Equal(t, "alice", outbid.CounterpartyID)
}

func TestResolveTieKeepsEarlierArrival(t *testing.T) {
	a := englishAuction(1000)
	leader := leaderBid("alice", 1000, decPtr(1500))

	res, err := testResolver().Resolve(Snapshot{Auction: a, Leader: leader},
		request("bob", domain.ProxyBid{Ceiling: dec(1500)}), testNow)
	assert.NoError(t, err)

	check.Equal(t, "alice", res.Result.LeaderID)
	check.Equal(t, "1500", res.Result.NewCurrentPrice.String())
	check.Equal(t, domain.BidStatusOutbid, res.Insert.Status)
	check.Equal(t, "1500", res.Insert.Amount.String())
	check.Equal(t, "1500", res.Updates[0].Amount.String())
}

func TestResolveRejections(t *testing.T) {
	tests := []struct {
		name    string
		auction func() domain.Auction
		leader  *domain.Bid
		req     domain.BidRequest
		kind    domain.ErrorKind
		sent    error
		minimum string
	}{
		{
			name:    "below minimum next bid",
			auction: func() domain.Auction { return englishAuction(1000) },
			req:     request("bob", domain.ManualBid{Amount: dec(1020)}),
			kind:    domain.KindBidTooLow,
			sent:    domain.ErrBidTooLow,
			minimum: "1025",
		},
		{
			name:    "ceiling-only proxy below floor",
			auction: func() domain.Auction { return englishAuction(1000) },
			req:     request("bob", domain.ProxyBid{Ceiling: dec(1010)}),
			kind:    domain.KindBidTooLow,
			sent:    domain.ErrBidTooLow,
			minimum: "1025",
		},
		{
			name:    "zero manual amount",
			auction: func() domain.Auction { return englishAuction(1000) },
			req:     request("bob", domain.ManualBid{}),
			kind:    domain.KindBidTooLow,
			sent:    domain.ErrBidTooLow,
		},
		{
			name:    "ceiling below amount",
			auction: func() domain.Auction { return englishAuction(1000) },
			req:     request("bob", domain.ProxyBid{Amount: dec(1200), Ceiling: dec(1100)}),
			kind:    domain.KindInvalidCeiling,
			sent:    domain.ErrInvalidCeiling,
		},
		{
			name:    "missing order",
			auction: func() domain.Auction { return englishAuction(1000) },
			req:     request("bob", nil),
			kind:    domain.KindInvalidCeiling,
			sent:    domain.ErrInvalidCeiling,
		},
		{
			name: "auction ended",
			auction: func() domain.Auction {
				a := englishAuction(1000)
				a.Status = domain.AuctionStatusEnded
				return a
			},
			req:  request("bob", domain.ManualBid{Amount: dec(5000)}),
			kind: domain.KindAuctionNotActive,
			sent: domain.ErrAuctionNotActive,
		},
		{
			name: "past end time",
			auction: func() domain.Auction {
				a := englishAuction(1000)
				a.EndTime = testNow.Add(-time.Second)
				return a
			},
			req:  request("bob", domain.ManualBid{Amount: dec(5000)}),
			kind: domain.KindAuctionNotActive,
			sent: domain.ErrAuctionNotActive,
		},
		{
			name: "not started",
			auction: func() domain.Auction {
				a := englishAuction(1000)
				a.Status = domain.AuctionStatusScheduled
				a.StartTime = testNow.Add(time.Minute)
				return a
			},
			req:  request("bob", domain.ManualBid{Amount: dec(5000)}),
			kind: domain.KindAuctionNotActive,
			sent: domain.ErrAuctionNotActive,
		},
		{
			name: "cancelled",
			auction: func() domain.Auction {
				a := englishAuction(1000)
				a.Status = domain.AuctionStatusCancelled
				return a
			},
			req:  request("bob", domain.ManualBid{Amount: dec(5000)}),
			kind: domain.KindAuctionNotActive,
			sent: domain.ErrAuctionNotActive,
		},
		{
			name:    "leader without raising ceiling",
			auction: func() domain.Auction { return englishAuction(1000) },
			leader:  leaderBid("alice", 1000, decPtr(1500)),
			req:     request("alice", domain.ProxyBid{Ceiling: dec(1500)}),
			kind:    domain.KindSelfOutbid,
			sent:    domain.ErrSelfOutbid,
		},
		{
			name:    "leader manual bid under own ceiling",
			auction: func() domain.Auction { return englishAuction(1000) },
			leader:  leaderBid("alice", 1000, decPtr(1500)),
			req:     request("alice", domain.ManualBid{Amount: dec(1200)}),
			kind:    domain.KindSelfOutbid,
			sent:    domain.ErrSelfOutbid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.auction()
			_, err := testResolver().Resolve(Snapshot{Auction: a, Leader: tt.leader}, tt.req, testNow)
			assert.Error(t, err)
			check.Equal(t, tt.kind, domain.KindOf(err))
			check.True(t, errors.Is(err, tt.sent))
			check.False(t, domain.Retryable(err))

			var be *domain.BidError
			assert.True(t, errors.As(err, &be))
			if tt.minimum != "" {
				check.Equal(t, tt.minimum, be.Minimum.String())
			}
		})
	}
}

func TestResolveLeaderRaisesOwnCeiling(t *testing.T) {
	a := englishAuction(1000)
	a.TotalBids = 4
	leader := leaderBid("alice", 1000, decPtr(1500))

	res, err := testResolver().Resolve(Snapshot{Auction: a, Leader: leader, BidderSeen: true},
		request("alice", domain.ProxyBid{Ceiling: dec(3000)}), testNow)
	assert.NoError(t, err)

	check.Equal(t, "1000", res.Result.NewCurrentPrice.String())
	check.Equal(t, "alice", res.Result.LeaderID)
	check.Equal(t, "leader-bid", res.Result.BidID)
	check.Equal(t, 4, res.Auction.TotalBids)
	check.True(t, res.Insert == nil)
	assert.Equal(t, 1, len(res.Updates))
	check.Equal(t, "3000", res.Updates[0].Ceiling().String())
	check.Equal(t, "1000", res.Updates[0].Amount.String())
}

func TestResolveOverrideIncrement(t *testing.T) {
	a := englishAuction(1000)
	a.MinBidIncrement = decPtr(100)
	leader := leaderBid("alice", 1000, decPtr(1500))

	_, err := testResolver().Resolve(Snapshot{Auction: a, Leader: leader},
		request("bob", domain.ManualBid{Amount: dec(1050)}), testNow)
	check.True(t, errors.Is(err, domain.ErrBidTooLow))

	res, err := testResolver().Resolve(Snapshot{Auction: a, Leader: leader},
		request("bob", domain.ProxyBid{Ceiling: dec(2000)}), testNow)
	assert.NoError(t, err)
	check.Equal(t, "1600", res.Result.NewCurrentPrice.String())
	check.Equal(t, "1700", res.Result.MinimumNextBid.String())
}

func TestResolveReserveMet(t *testing.T) {
	a := englishAuction(100)
	a.ReservePrice = decPtr(500)

	res, err := testResolver().Resolve(Snapshot{Auction: a}, request("alice", domain.ManualBid{Amount: dec(200)}), testNow)
	assert.NoError(t, err)
	check.False(t, res.Result.ReserveMet)

	res, err = testResolver().Resolve(Snapshot{Auction: a}, request("alice", domain.ManualBid{Amount: dec(500)}), testNow)
	assert.NoError(t, err)
	check.True(t, res.Result.ReserveMet)
}

func TestResolveBuyNowCloses(t *testing.T) {
	a := englishAuction(1000)
	a.BuyNowPrice = decPtr(5000)
	leader := leaderBid("alice", 1000, decPtr(8000))

	res, err := testResolver().Resolve(Snapshot{Auction: a, Leader: leader},
		request("bob", domain.ManualBid{Amount: dec(6000)}), testNow)
	assert.NoError(t, err)

	check.True(t, res.Result.Closed)
	check.Equal(t, "bob", res.Result.LeaderID)
	check.Equal(t, "5000", res.Result.NewCurrentPrice.String())
	check.Equal(t, domain.AuctionStatusEnded, res.Auction.Status)
	check.Equal(t, "bob", res.Auction.WinnerID)
	check.Equal(t, domain.BidStatusOutbid, res.Updates[0].Status)
	check.Equal(t, domain.EventAuctionClosed, res.Events[len(res.Events)-1].Type)
	check.True(t, res.Result.MinimumNextBid.IsZero())
}

func TestResolveScheduledActivates(t *testing.T) {
	a := englishAuction(100)
	a.Status = domain.AuctionStatusScheduled

	res, err := testResolver().Resolve(Snapshot{Auction: a}, request("alice", domain.ManualBid{Amount: dec(105)}), testNow)
	assert.NoError(t, err)
	check.Equal(t, domain.AuctionStatusActive, res.Auction.Status)
	check.Equal(t, domain.EventAuctionActivated, res.Events[0].Type)
}

func TestResolveExtendsNearDeadline(t *testing.T) {
	a := englishAuction(100)
	a.EndTime = testNow.Add(2 * time.Minute)

	res, err := testResolver().Resolve(Snapshot{Auction: a}, request("alice", domain.ManualBid{Amount: dec(105)}), testNow)
	assert.NoError(t, err)
	check.True(t, res.Result.Extended)
	check.True(t, res.Auction.EndTime.Equal(testNow.Add(4*time.Minute)))
	check.True(t, res.Result.NewEndTime.Equal(res.Auction.EndTime))
	check.Equal(t, 1, res.Auction.TimesExtended)
	check.Equal(t, domain.EventAuctionExtended, res.Events[len(res.Events)-1].Type)

	a.TimesExtended = 3
	res, err = testResolver().Resolve(Snapshot{Auction: a}, request("alice", domain.ManualBid{Amount: dec(105)}), testNow)
	assert.NoError(t, err)
	check.False(t, res.Result.Extended)
	check.True(t, res.Auction.EndTime.Equal(a.EndTime))
}

func TestResolveDutch(t *testing.T) {
	a := domain.Auction{
		ID:            "auc-1",
		Mode:          domain.AuctionModeDutch,
		Status:        domain.AuctionStatusActive,
		StartingPrice: dec(10000),
		CurrentPrice:  dec(10000),
		ReservePrice:  decPtr(2000),
		StartTime:     testNow.Add(-5 * time.Hour),
		EndTime:       testNow.Add(5 * time.Hour),
	}

	_, err := testResolver().Resolve(Snapshot{Auction: a}, request("bob", domain.ManualBid{Amount: dec(5999)}), testNow)
	assert.Error(t, err)
	var be *domain.BidError
	assert.True(t, errors.As(err, &be))
	check.Equal(t, "6000", be.Minimum.String())

	res, err := testResolver().Resolve(Snapshot{Auction: a}, request("bob", domain.ManualBid{Amount: dec(7000)}), testNow)
	assert.NoError(t, err)
	check.True(t, res.Result.Closed)
	check.Equal(t, "6000", res.Result.NewCurrentPrice.String())
	check.Equal(t, "6000", res.Insert.Amount.String())
	check.True(t, res.Insert.MaxAutoBid == nil)
	check.Equal(t, domain.AuctionStatusEnded, res.Auction.Status)
	check.Equal(t, "bob", res.Auction.WinnerID)
	check.False(t, res.Result.Extended)
}

// TestResolveSequentialProxyWar feeds strictly increasing ceilings one after
// another and checks the standing price and leader after each step.
func TestResolveSequentialProxyWar(t *testing.T) {
	r := testResolver()
	snap := Snapshot{Auction: englishAuction(100)}
	bids := map[string]domain.Bid{}

	apply := func(res Resolution) {
		snap.Auction = res.Auction
		if res.Insert != nil {
			bids[res.Insert.ID] = *res.Insert
		}
		for _, b := range res.Updates {
			bids[b.ID] = b
		}
		snap.Leader = nil
		for _, b := range bids {
			if b.Status == domain.BidStatusWinning {
				lb := b
				snap.Leader = &lb
			}
		}
	}

	steps := []struct {
		bidder  string
		ceiling int64
		leader  string
		price   string
	}{
		{"a", 300, "a", "105"},
		{"b", 400, "b", "305"},
		{"c", 600, "c", "405"},
		{"d", 650, "d", "610"},
		{"e", 2000, "e", "660"},
	}
	for _, step := range steps {
		res, err := r.Resolve(snap, request(step.bidder, domain.ProxyBid{Ceiling: dec(step.ceiling)}), testNow)
		assert.NoError(t, err)
		apply(res)
		check.Equal(t, step.leader, res.Result.LeaderID)
		check.Equal(t, step.price, res.Result.NewCurrentPrice.String())
	}

	winning := 0
	for _, b := range bids {
		if b.Status == domain.BidStatusWinning {
			winning++
		}
	}
	check.Equal(t, 1, winning)
	check.Equal(t, len(steps), len(bids))
}
