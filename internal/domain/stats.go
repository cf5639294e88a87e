package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SellerStats is the reputation read-model assembled from a seller's
// transaction history. Rates are fractions in [0,1].
type SellerStats struct {
	SellerID          string        `json:"seller_id"`
	CompletionRate    float64       `json:"completion_rate"`
	AverageRating     float64       `json:"average_rating"`
	AvgPaymentTime    time.Duration `json:"avg_payment_time"`
	TotalTransactions int           `json:"total_transactions"`
	DisputeRate       float64       `json:"dispute_rate"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// UrgencyInput is the live telemetry used to rank auctions for discovery.
type UrgencyInput struct {
	AuctionID      string          `json:"auction_id"`
	TotalBids      int             `json:"total_bids"`
	Views          int             `json:"views"`
	WatchlistCount int             `json:"watchlist_count"`
	StartingPrice  decimal.Decimal `json:"starting_price"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	EndTime        time.Time       `json:"end_time"`
}

// UrgencyInputFor extracts the urgency telemetry from an auction.
func UrgencyInputFor(a Auction) UrgencyInput {
	return UrgencyInput{
		AuctionID:      a.ID,
		TotalBids:      a.TotalBids,
		Views:          a.Views,
		WatchlistCount: a.WatchlistCount,
		StartingPrice:  a.StartingPrice,
		CurrentPrice:   a.CurrentPrice,
		EndTime:        a.EndTime,
	}
}

// RankedAuction pairs an auction id with its urgency score.
type RankedAuction struct {
	AuctionID string  `json:"auction_id"`
	Score     float64 `json:"score"`
}
