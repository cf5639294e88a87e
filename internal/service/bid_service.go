package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"

	"github.com/alanyoungcy/auctionengine/internal/bidding"
	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// LeaseKey is the distributed lease key for an auction.
func LeaseKey(auctionID string) string {
	return "auction:" + auctionID
}

// BidService runs bid submissions as one atomic unit per auction: it takes
// the auction's exclusive lock, resolves the bid against the locked state and
// persists every change before releasing it. Events and the display cache
// are updated only after commit.
type BidService struct {
	auctions  domain.AuctionStore
	resolver  *bidding.Resolver
	cache     domain.AuctionCache
	publisher domain.EventPublisher
	leases    domain.LockManager
	leaseTTL  time.Duration
	dedup     *Dedup
	clock     clock.Clock
	logger    *slog.Logger
}

// NewBidService creates a BidService. Cache, publisher, lease and dedup are
// attached with the With* methods and are all optional.
func NewBidService(
	auctions domain.AuctionStore,
	resolver *bidding.Resolver,
	clk clock.Clock,
	logger *slog.Logger,
) *BidService {
	return &BidService{
		auctions: auctions,
		resolver: resolver,
		clock:    clk,
		logger:   logger.With(slog.String("component", "bid_service")),
	}
}

// WithCache refreshes the display snapshot after every accepted bid.
func (s *BidService) WithCache(cache domain.AuctionCache) *BidService {
	s.cache = cache
	return s
}

// WithPublisher delivers committed events.
func (s *BidService) WithPublisher(p domain.EventPublisher) *BidService {
	s.publisher = p
	return s
}

// WithLease takes a cross-instance lease on the auction before opening the
// store transaction, so competing instances queue in Redis rather than on
// the database row lock.
func (s *BidService) WithLease(leases domain.LockManager, ttl time.Duration) *BidService {
	s.leases = leases
	s.leaseTTL = ttl
	return s
}

// WithDedup short-circuits retries of recently committed submissions.
func (s *BidService) WithDedup(d *Dedup) *BidService {
	s.dedup = d
	return s
}

// SubmitBid resolves req against the current state of its auction. An empty
// SubmissionID is replaced with a fresh one, which disables idempotency for
// that request.
func (s *BidService) SubmitBid(ctx context.Context, req domain.BidRequest) (domain.BidResult, error) {
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}
	if s.dedup != nil && s.dedup.Seen(req.SubmissionID) {
		return domain.BidResult{}, domain.Reject(domain.KindDuplicateSubmission, req.AuctionID, req.BidderID)
	}

	if s.leases != nil {
		unlock, err := s.leases.Acquire(ctx, LeaseKey(req.AuctionID), s.leaseTTL)
		if err != nil {
			return domain.BidResult{}, s.reject(req, fmt.Errorf("bid_service: lease: %w", err))
		}
		defer unlock()
	}

	var res bidding.Resolution
	err := s.auctions.WithAuctionLock(ctx, req.AuctionID, func(ctx context.Context, tx domain.AuctionTx) error {
		var err error
		res, err = s.resolveLocked(ctx, tx, req)
		return err
	})
	if err != nil {
		return domain.BidResult{}, s.reject(req, err)
	}

	if s.dedup != nil {
		s.dedup.Remember(req.SubmissionID)
	}
	s.logger.InfoContext(ctx, "bid_service: bid accepted",
		slog.String("auction_id", req.AuctionID),
		slog.String("bid_id", res.Result.BidID),
		slog.String("leader_id", res.Result.LeaderID),
		slog.String("price", res.Result.NewCurrentPrice.String()),
		slog.Bool("counter_bid", res.Result.CounterBidTriggered),
		slog.Bool("extended", res.Result.Extended),
		slog.Bool("closed", res.Result.Closed),
	)
	s.afterCommit(ctx, res.Auction, res.Result.LeaderID, res.Events)
	return res.Result, nil
}

// resolveLocked runs inside the auction's atomic unit. Any error rolls back
// every write made through tx.
func (s *BidService) resolveLocked(ctx context.Context, tx domain.AuctionTx, req domain.BidRequest) (bidding.Resolution, error) {
	dup, err := tx.SubmissionExists(ctx, req.SubmissionID)
	if err != nil {
		return bidding.Resolution{}, err
	}
	if dup {
		return bidding.Resolution{}, domain.Reject(domain.KindDuplicateSubmission, req.AuctionID, req.BidderID)
	}

	snap := bidding.Snapshot{Auction: tx.Auction()}
	if leader, ok := tx.Leader(); ok {
		snap.Leader = &leader
	}
	if snap.BidderSeen, err = tx.HasBidFrom(ctx, req.BidderID); err != nil {
		return bidding.Resolution{}, err
	}

	now := s.clock.Now()
	res, err := s.resolver.Resolve(snap, req, now)
	if err != nil {
		return bidding.Resolution{}, err
	}

	// The displaced leader must leave WINNING before the new row claims it.
	for _, b := range res.Updates {
		if err := tx.UpdateBid(ctx, b); err != nil {
			return bidding.Resolution{}, err
		}
	}
	if res.Insert != nil {
		if err := tx.InsertBid(ctx, *res.Insert); err != nil {
			return bidding.Resolution{}, err
		}
	}
	if err := tx.SaveAuction(ctx, res.Auction); err != nil {
		return bidding.Resolution{}, err
	}
	err = tx.RecordSubmission(ctx, domain.Submission{
		SubmissionID: req.SubmissionID,
		AuctionID:    req.AuctionID,
		BidderID:     req.BidderID,
		BidID:        res.Result.BidID,
		CreatedAt:    now,
	})
	if err != nil {
		return bidding.Resolution{}, err
	}
	if err := tx.AppendEvents(ctx, res.Events); err != nil {
		return bidding.Resolution{}, err
	}
	return res, nil
}

// reject normalizes store and lease failures into typed bid errors.
func (s *BidService) reject(req domain.BidRequest, err error) error {
	var be *domain.BidError
	switch {
	case errors.As(err, &be):
		return be
	case errors.Is(err, domain.ErrNotFound):
		return domain.Reject(domain.KindNotFound, req.AuctionID, req.BidderID)
	case errors.Is(err, domain.ErrDuplicateSubmission):
		return domain.Reject(domain.KindDuplicateSubmission, req.AuctionID, req.BidderID)
	case errors.Is(err, domain.ErrLockContention):
		s.logger.Warn("bid_service: lock contention", slog.String("auction_id", req.AuctionID))
		return &domain.BidError{Kind: domain.KindLockContention, AuctionID: req.AuctionID, BidderID: req.BidderID, Err: err}
	}
	return fmt.Errorf("bid_service: submit bid on %s: %w", req.AuctionID, err)
}

// afterCommit publishes events and refreshes the display cache. Failures are
// logged; the bid is already durable.
func (s *BidService) afterCommit(ctx context.Context, a domain.Auction, leaderID string, events []domain.Event) {
	publishAndCache(ctx, s.publisher, s.cache, s.logger, a, leaderID, events, s.clock.Now())
}

func publishAndCache(
	ctx context.Context,
	publisher domain.EventPublisher,
	cache domain.AuctionCache,
	logger *slog.Logger,
	a domain.Auction,
	leaderID string,
	events []domain.Event,
	now time.Time,
) {
	if publisher != nil && len(events) > 0 {
		if err := publisher.Publish(ctx, events); err != nil {
			logger.WarnContext(ctx, "publish events failed",
				slog.String("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if cache != nil {
		if err := cache.Set(ctx, snapshotOf(a, leaderID, now)); err != nil {
			logger.WarnContext(ctx, "refresh auction cache failed",
				slog.String("auction_id", a.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
