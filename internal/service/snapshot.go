package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/alanyoungcy/auctionengine/internal/pricing"
)

// displayPrice is the price shown for a at now. Dutch auctions derive it
// from the clock while open.
func displayPrice(a domain.Auction, now time.Time) decimal.Decimal {
	if a.Mode == domain.AuctionModeDutch && !a.Status.Terminal() {
		return pricing.DutchPrice(a.StartingPrice, a.ReserveValue(), a.StartTime, a.EndTime, now)
	}
	return a.CurrentPrice
}

// minimumNextBid is the least acceptable offer for a at now. For Dutch
// auctions that is the instantaneous price itself.
func minimumNextBid(a domain.Auction, now time.Time) decimal.Decimal {
	if a.Mode == domain.AuctionModeDutch {
		return displayPrice(a, now)
	}
	return pricing.MinimumNextBid(a.CurrentPrice, a.MinBidIncrement)
}

func snapshotOf(a domain.Auction, leaderID string, now time.Time) domain.AuctionSnapshot {
	snap := domain.AuctionSnapshot{
		AuctionID:    a.ID,
		Status:       a.Status,
		Mode:         a.Mode,
		CurrentPrice: displayPrice(a, now),
		LeaderID:     leaderID,
		EndTime:      a.EndTime,
		TotalBids:    a.TotalBids,
		Version:      a.Version,
	}
	if !a.Status.Terminal() {
		snap.MinimumNextBid = minimumNextBid(a, now)
	}
	return snap
}
