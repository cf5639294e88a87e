package domain

import "github.com/shopspring/decimal"

// FeeBreakdown is the settlement commission split for one sale.
type FeeBreakdown struct {
	Category        string          `json:"category"`
	FinalPrice      decimal.Decimal `json:"final_price"`
	SellerFeeRate   decimal.Decimal `json:"seller_fee_rate"`
	SellerFeeAmount decimal.Decimal `json:"seller_fee_amount"`
	BuyerFeeRate    decimal.Decimal `json:"buyer_fee_rate"`
	BuyerFeeAmount  decimal.Decimal `json:"buyer_fee_amount"`
	SellerPayout    decimal.Decimal `json:"seller_payout"`
	BuyerTotal      decimal.Decimal `json:"buyer_total"`
}

// Settlement is the outcome of settling an ended auction. Sold is false when
// the auction ended without bids or below its reserve; Fees is then empty.
type Settlement struct {
	AuctionID   string       `json:"auction_id"`
	Sold        bool         `json:"sold"`
	WinnerID    string       `json:"winner_id"`
	WinningBid  string       `json:"winning_bid_id"`
	Fees        FeeBreakdown `json:"fees"`
	ArchivePath string       `json:"archive_path,omitempty"`
}
