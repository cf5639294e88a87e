package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuctionStatus tracks the auction lifecycle.
type AuctionStatus string

const (
	AuctionStatusScheduled AuctionStatus = "SCHEDULED"
	AuctionStatusActive    AuctionStatus = "ACTIVE"
	AuctionStatusEnded     AuctionStatus = "ENDED"
	AuctionStatusCancelled AuctionStatus = "CANCELLED"
)

// Terminal reports whether no further bids or transitions are possible.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusEnded || s == AuctionStatusCancelled
}

// AuctionMode selects the pricing mechanism.
type AuctionMode string

const (
	AuctionModeEnglish AuctionMode = "ENGLISH" // ascending, proxy bidding
	AuctionModeDutch   AuctionMode = "DUTCH"   // descending, first taker wins
)

// Auction is the aggregate every bid is resolved against. For DUTCH auctions
// CurrentPrice is informational only; the live price is derived from the
// clock on every read.
type Auction struct {
	ID              string           `json:"id"`
	SellerID        string           `json:"seller_id"`
	Category        string           `json:"category"`
	Mode            AuctionMode      `json:"mode"`
	Status          AuctionStatus    `json:"status"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	BuyNowPrice     *decimal.Decimal `json:"buy_now_price,omitempty"`
	MinBidIncrement *decimal.Decimal `json:"min_bid_increment,omitempty"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
	TimesExtended   int              `json:"times_extended"`
	TotalBids       int              `json:"total_bids"`
	UniqueBidders   int              `json:"unique_bidders"`
	Views           int              `json:"views"`
	WatchlistCount  int              `json:"watchlist_count"`
	WinnerID        string           `json:"winner_id,omitempty"`
	Version         int64            `json:"version"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// AcceptsBidsAt reports whether a bid arriving at now may be considered.
// A SCHEDULED auction whose start time has passed counts as open; the caller
// is expected to persist the activation in the same unit of work.
func (a Auction) AcceptsBidsAt(now time.Time) bool {
	switch a.Status {
	case AuctionStatusActive, AuctionStatusScheduled:
	default:
		return false
	}
	if now.Before(a.StartTime) {
		return false
	}
	return !now.After(a.EndTime)
}

// ReserveValue returns the reserve price, or zero when none is set.
func (a Auction) ReserveValue() decimal.Decimal {
	if a.ReservePrice == nil {
		return decimal.Zero
	}
	return *a.ReservePrice
}

// ReserveMet reports whether price satisfies the reserve. Auctions without a
// reserve are always met.
func (a Auction) ReserveMet(price decimal.Decimal) bool {
	if a.ReservePrice == nil {
		return true
	}
	return price.GreaterThanOrEqual(*a.ReservePrice)
}

// AuctionSnapshot is the lock-free display view kept in the cache.
type AuctionSnapshot struct {
	AuctionID      string          `json:"auction_id"`
	Status         AuctionStatus   `json:"status"`
	Mode           AuctionMode     `json:"mode"`
	CurrentPrice   decimal.Decimal `json:"current_price"`
	MinimumNextBid decimal.Decimal `json:"minimum_next_bid"`
	LeaderID       string          `json:"leader_id,omitempty"`
	EndTime        time.Time       `json:"end_time"`
	TotalBids      int             `json:"total_bids"`
	Version        int64           `json:"version"`
}
