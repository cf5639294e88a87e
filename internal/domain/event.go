package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType names a domain event emitted by the engine.
type EventType string

const (
	EventBidAccepted      EventType = "bid_accepted"
	EventBidOutbid        EventType = "bid_outbid"
	EventAuctionExtended  EventType = "auction_extended"
	EventAuctionClosed    EventType = "auction_closed"
	EventAuctionActivated EventType = "auction_activated"
	EventAuctionCancelled EventType = "auction_cancelled"
)

// Event is appended to the audit log inside the bid transaction and published
// on the event bus after commit. For EventBidOutbid, BidderID is the bidder
// who lost the lead and CounterpartyID is the bidder now leading.
type Event struct {
	Type           EventType       `json:"type"`
	AuctionID      string          `json:"auction_id"`
	BidID          string          `json:"bid_id,omitempty"`
	BidderID       string          `json:"bidder_id,omitempty"`
	CounterpartyID string          `json:"counterparty_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	EndTime        time.Time       `json:"end_time,omitempty"`
	At             time.Time       `json:"at"`
}

// Channel is the pub/sub channel an event is published on.
func (e Event) Channel() string {
	return "ch:auction:" + e.AuctionID
}
