package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

var now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, id string) domain.Auction {
	t.Helper()
	a := domain.Auction{
		ID:            id,
		SellerID:      "seller",
		Mode:          domain.AuctionModeEnglish,
		Status:        domain.AuctionStatusActive,
		StartingPrice: decimal.NewFromInt(100),
		CurrentPrice:  decimal.NewFromInt(100),
		StartTime:     now.Add(-time.Hour),
		EndTime:       now.Add(time.Hour),
		Version:       1,
	}
	assert.NoError(t, s.Create(context.Background(), a))
	return a
}

func TestWithAuctionLockCommits(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	seed(t, s, "a1")

	err := s.WithAuctionLock(ctx, "a1", func(ctx context.Context, tx domain.AuctionTx) error {
		a := tx.Auction()
		a.CurrentPrice = decimal.NewFromInt(150)
		a.TotalBids = 1
		assert.NoError(t, tx.InsertBid(ctx, domain.Bid{ID: "b1", AuctionID: "a1", BidderID: "u1",
			Amount: decimal.NewFromInt(150), Status: domain.BidStatusWinning, Seq: 1}))
		assert.NoError(t, tx.RecordSubmission(ctx, domain.Submission{SubmissionID: "s1", AuctionID: "a1", BidderID: "u1", BidID: "b1"}))
		assert.NoError(t, tx.AppendEvents(ctx, []domain.Event{{Type: domain.EventBidAccepted, AuctionID: "a1", At: now}}))

		seen, err := tx.HasBidFrom(ctx, "u1")
		assert.NoError(t, err)
		check.True(t, seen)
		return tx.SaveAuction(ctx, a)
	})
	assert.NoError(t, err)

	a, err := s.GetByID(ctx, "a1")
	assert.NoError(t, err)
	check.Equal(t, "150", a.CurrentPrice.String())

	winning, err := s.Bids().GetWinning(ctx, "a1")
	assert.NoError(t, err)
	check.Equal(t, "b1", winning.ID)

	entries, err := s.List(ctx, domain.ListOpts{})
	assert.NoError(t, err)
	assert.Equal(t, 1, len(entries))
	check.Equal(t, "bid_accepted", entries[0].Event)
	check.Equal(t, "a1", entries[0].Detail["auction_id"])
}

func TestWithAuctionLockRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	seed(t, s, "a1")
	boom := errors.New("boom")

	err := s.WithAuctionLock(ctx, "a1", func(ctx context.Context, tx domain.AuctionTx) error {
		a := tx.Auction()
		a.CurrentPrice = decimal.NewFromInt(999)
		_ = tx.SaveAuction(ctx, a)
		_ = tx.InsertBid(ctx, domain.Bid{ID: "b1", AuctionID: "a1", Status: domain.BidStatusWinning})
		return boom
	})
	check.True(t, errors.Is(err, boom))

	a, _ := s.GetByID(ctx, "a1")
	check.Equal(t, "100", a.CurrentPrice.String())
	_, err = s.Bids().GetByID(ctx, "b1")
	check.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestWithAuctionLockContention(t *testing.T) {
	ctx := context.Background()
	s := New(20 * time.Millisecond)
	seed(t, s, "a1")
	seed(t, s, "a2")

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.WithAuctionLock(ctx, "a1", func(context.Context, domain.AuctionTx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	err := s.WithAuctionLock(ctx, "a1", func(context.Context, domain.AuctionTx) error { return nil })
	check.True(t, errors.Is(err, domain.ErrLockContention))
	check.True(t, domain.Retryable(err))

	// Other auctions are not blocked.
	err = s.WithAuctionLock(ctx, "a2", func(context.Context, domain.AuctionTx) error { return nil })
	check.NoError(t, err)
	close(done)
}

func TestDuplicateSubmission(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	seed(t, s, "a1")

	record := func(ctx context.Context, tx domain.AuctionTx) error {
		return tx.RecordSubmission(ctx, domain.Submission{SubmissionID: "dup", AuctionID: "a1"})
	}
	assert.NoError(t, s.WithAuctionLock(ctx, "a1", record))
	err := s.WithAuctionLock(ctx, "a1", record)
	check.True(t, errors.Is(err, domain.ErrDuplicateSubmission))
}

func TestSecondWinningBidRejected(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	seed(t, s, "a1")

	err := s.WithAuctionLock(ctx, "a1", func(ctx context.Context, tx domain.AuctionTx) error {
		assert.NoError(t, tx.InsertBid(ctx, domain.Bid{ID: "b1", AuctionID: "a1", Status: domain.BidStatusWinning}))
		return tx.InsertBid(ctx, domain.Bid{ID: "b2", AuctionID: "a1", Status: domain.BidStatusWinning})
	})
	check.Error(t, err)
}

func TestListDue(t *testing.T) {
	ctx := context.Background()
	s := New(0)
	seed(t, s, "live")

	ended := seed(t, s, "ended")
	ended.EndTime = now.Add(-time.Minute)
	s.auctions["ended"] = ended

	starting := seed(t, s, "starting")
	starting.Status = domain.AuctionStatusScheduled
	starting.StartTime = now.Add(-time.Second)
	s.auctions["starting"] = starting

	due, err := s.ListDue(ctx, now, 10)
	assert.NoError(t, err)
	assert.Equal(t, 2, len(due))
	check.Equal(t, "ended", due[0].ID)
	check.Equal(t, "starting", due[1].ID)
}
