package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// AuctionTx is the exclusive, transactional view of a single auction handed
// to the callback of AuctionStore.WithAuctionLock. Every write made through it
// commits together or not at all.
type AuctionTx interface {
	// Auction returns the snapshot loaded under the lock.
	Auction() Auction
	// Leader returns the WINNING bid, if any.
	Leader() (Bid, bool)
	HasBidFrom(ctx context.Context, bidderID string) (bool, error)
	SubmissionExists(ctx context.Context, submissionID string) (bool, error)
	InsertBid(ctx context.Context, bid Bid) error
	UpdateBid(ctx context.Context, bid Bid) error
	SaveAuction(ctx context.Context, auction Auction) error
	RecordSubmission(ctx context.Context, sub Submission) error
	AppendEvents(ctx context.Context, events []Event) error
}

// AuctionStore persists auctions and provides the per-auction atomic unit.
type AuctionStore interface {
	Create(ctx context.Context, auction Auction) error
	GetByID(ctx context.Context, id string) (Auction, error)
	// ListDue returns auctions whose lifecycle must advance at now: SCHEDULED
	// auctions past their start time and ACTIVE auctions past their end time.
	ListDue(ctx context.Context, now time.Time, limit int) ([]Auction, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Auction, error)
	// WithAuctionLock runs fn while holding the auction's exclusive lock. If
	// fn returns an error nothing it wrote is kept.
	WithAuctionLock(ctx context.Context, id string, fn func(ctx context.Context, tx AuctionTx) error) error
}

// BidStore provides read access to bid history.
type BidStore interface {
	GetByID(ctx context.Context, id string) (Bid, error)
	GetWinning(ctx context.Context, auctionID string) (Bid, error)
	ListByAuction(ctx context.Context, auctionID string, opts ListOpts) ([]Bid, error)
}

// SellerStatsStore persists the reputation read-model maintained by the
// surrounding application.
type SellerStatsStore interface {
	Get(ctx context.Context, sellerID string) (SellerStats, error)
	Upsert(ctx context.Context, stats SellerStats) error
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
