package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidStatus tracks a bid row through resolution.
type BidStatus string

const (
	BidStatusActive    BidStatus = "ACTIVE"
	BidStatusWinning   BidStatus = "WINNING"
	BidStatusOutbid    BidStatus = "OUTBID"
	BidStatusWithdrawn BidStatus = "WITHDRAWN"
)

// Bid is one accepted submission. Amount is what the bidder is committed to
// pay if they win; MaxAutoBid is the private proxy ceiling and is never
// serialized to other parties.
type Bid struct {
	ID           string           `json:"id"`
	AuctionID    string           `json:"auction_id"`
	BidderID     string           `json:"bidder_id"`
	SubmissionID string           `json:"submission_id,omitempty"`
	Amount       decimal.Decimal  `json:"amount"`
	MaxAutoBid   *decimal.Decimal `json:"-"`
	IsAutoBid    bool             `json:"is_auto_bid"`
	Status       BidStatus        `json:"status"`
	Seq          int64            `json:"seq"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Ceiling is the most this bid can stand at: the proxy ceiling when set,
// otherwise the amount itself.
func (b Bid) Ceiling() decimal.Decimal {
	if b.MaxAutoBid != nil {
		return *b.MaxAutoBid
	}
	return b.Amount
}

// BidOrder is the closed set of bid kinds a bidder can submit: ManualBid or
// ProxyBid.
type BidOrder interface {
	// Opening is the amount the bidder explicitly asked to show. It is zero
	// for a proxy placed purely as a ceiling.
	Opening() decimal.Decimal
	// Limit is the most the bidder is willing to pay.
	Limit() decimal.Decimal
	isBidOrder()
}

// ManualBid commits to exactly Amount.
type ManualBid struct {
	Amount decimal.Decimal
}

func (m ManualBid) Opening() decimal.Decimal { return m.Amount }
func (m ManualBid) Limit() decimal.Decimal   { return m.Amount }
func (ManualBid) isBidOrder()                {}

// ProxyBid lets the engine bid on the bidder's behalf up to Ceiling. Amount
// may be zero, in which case the shown amount is the minimum next bid.
type ProxyBid struct {
	Amount  decimal.Decimal
	Ceiling decimal.Decimal
}

func (p ProxyBid) Opening() decimal.Decimal { return p.Amount }
func (p ProxyBid) Limit() decimal.Decimal   { return p.Ceiling }
func (ProxyBid) isBidOrder()                {}

// BidRequest is an incoming submission. SubmissionID must be unique per
// logical request so retries can be rejected as duplicates.
type BidRequest struct {
	SubmissionID string
	AuctionID    string
	BidderID     string
	Order        BidOrder
}

// BidResult is returned for every accepted submission.
type BidResult struct {
	Accepted            bool            `json:"accepted"`
	BidID               string          `json:"bid_id"`
	NewCurrentPrice     decimal.Decimal `json:"new_current_price"`
	LeaderID            string          `json:"leader_id"`
	CounterBidTriggered bool            `json:"counter_bid_triggered"`
	OutbidBidderID      string          `json:"outbid_bidder_id,omitempty"`
	Extended            bool            `json:"extended"`
	NewEndTime          time.Time       `json:"new_end_time"`
	Closed              bool            `json:"closed"`
	ReserveMet          bool            `json:"reserve_met"`
	MinimumNextBid      decimal.Decimal `json:"minimum_next_bid"`
}

// Submission records a processed SubmissionID for idempotency.
type Submission struct {
	SubmissionID string
	AuctionID    string
	BidderID     string
	BidID        string
	CreatedAt    time.Time
}
