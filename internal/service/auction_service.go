package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/alanyoungcy/auctionengine/internal/pricing"
)

// CreateAuctionParams describes a new listing.
type CreateAuctionParams struct {
	SellerID        string             `json:"seller_id"`
	Category        string             `json:"category"`
	Mode            domain.AuctionMode `json:"mode"`
	StartingPrice   decimal.Decimal    `json:"starting_price"`
	ReservePrice    *decimal.Decimal   `json:"reserve_price,omitempty"`
	BuyNowPrice     *decimal.Decimal   `json:"buy_now_price,omitempty"`
	MinBidIncrement *decimal.Decimal   `json:"min_bid_increment,omitempty"`
	StartTime       time.Time          `json:"start_time"`
	EndTime         time.Time          `json:"end_time"`
}

// AuctionService owns the auction lifecycle outside bid resolution and the
// lock-free display reads.
type AuctionService struct {
	auctions  domain.AuctionStore
	bids      domain.BidStore
	cache     domain.AuctionCache
	publisher domain.EventPublisher
	clock     clock.Clock
	newID     func() string
	logger    *slog.Logger
}

// NewAuctionService creates an AuctionService. cache and publisher may be nil.
func NewAuctionService(
	auctions domain.AuctionStore,
	bids domain.BidStore,
	cache domain.AuctionCache,
	publisher domain.EventPublisher,
	clk clock.Clock,
	logger *slog.Logger,
) *AuctionService {
	return &AuctionService{
		auctions:  auctions,
		bids:      bids,
		cache:     cache,
		publisher: publisher,
		clock:     clk,
		newID:     uuid.NewString,
		logger:    logger.With(slog.String("component", "auction_service")),
	}
}

// Create validates p and stores a new auction. It starts ACTIVE when its
// start time has already passed.
func (s *AuctionService) Create(ctx context.Context, p CreateAuctionParams) (domain.Auction, error) {
	now := s.clock.Now()
	if p.StartTime.IsZero() {
		p.StartTime = now
	}
	if p.Mode == "" {
		p.Mode = domain.AuctionModeEnglish
	}
	if err := validateParams(p); err != nil {
		return domain.Auction{}, err
	}

	a := domain.Auction{
		ID:              s.newID(),
		SellerID:        p.SellerID,
		Category:        pricing.NormalizeCategory(p.Category),
		Mode:            p.Mode,
		Status:          domain.AuctionStatusScheduled,
		StartingPrice:   p.StartingPrice,
		CurrentPrice:    p.StartingPrice,
		ReservePrice:    p.ReservePrice,
		BuyNowPrice:     p.BuyNowPrice,
		MinBidIncrement: p.MinBidIncrement,
		StartTime:       p.StartTime.UTC(),
		EndTime:         p.EndTime.UTC(),
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if !now.Before(a.StartTime) {
		a.Status = domain.AuctionStatusActive
	}

	if err := s.auctions.Create(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: create: %w", err)
	}
	s.logger.InfoContext(ctx, "auction_service: auction created",
		slog.String("auction_id", a.ID),
		slog.String("mode", string(a.Mode)),
		slog.String("status", string(a.Status)),
	)
	publishAndCache(ctx, nil, s.cache, s.logger, a, "", nil, now)
	return a, nil
}

func validateParams(p CreateAuctionParams) error {
	var problems []string
	if strings.TrimSpace(p.SellerID) == "" {
		problems = append(problems, "seller_id is required")
	}
	if p.Mode != domain.AuctionModeEnglish && p.Mode != domain.AuctionModeDutch {
		problems = append(problems, fmt.Sprintf("unknown mode %q", p.Mode))
	}
	if !p.StartingPrice.IsPositive() || !p.StartingPrice.Equal(p.StartingPrice.Truncate(0)) {
		problems = append(problems, "starting_price must be a positive whole amount")
	}
	if !p.EndTime.After(p.StartTime) {
		problems = append(problems, "end_time must be after start_time")
	}
	if p.ReservePrice != nil && p.ReservePrice.IsNegative() {
		problems = append(problems, "reserve_price must not be negative")
	}
	if p.MinBidIncrement != nil && !p.MinBidIncrement.IsPositive() {
		problems = append(problems, "min_bid_increment must be positive")
	}
	if p.BuyNowPrice != nil && !p.BuyNowPrice.GreaterThan(p.StartingPrice) {
		problems = append(problems, "buy_now_price must exceed starting_price")
	}
	if p.Mode == domain.AuctionModeDutch {
		if p.ReservePrice != nil && p.ReservePrice.GreaterThan(p.StartingPrice) {
			problems = append(problems, "dutch reserve_price must not exceed starting_price")
		}
		if p.BuyNowPrice != nil {
			problems = append(problems, "dutch auctions do not take buy_now_price")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidAuction, strings.Join(problems, "; "))
	}
	return nil
}

// Get returns the auction with a Dutch auction's live price filled in.
func (s *AuctionService) Get(ctx context.Context, id string) (domain.Auction, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: get %s: %w", id, err)
	}
	a.CurrentPrice = displayPrice(a, s.clock.Now())
	return a, nil
}

// Cancel withdraws an auction that has not received any bid. A non-empty
// sellerID must match the auction's seller.
func (s *AuctionService) Cancel(ctx context.Context, id, sellerID string) (domain.Auction, error) {
	var cancelled domain.Auction
	var event domain.Event
	err := s.auctions.WithAuctionLock(ctx, id, func(ctx context.Context, tx domain.AuctionTx) error {
		a := tx.Auction()
		switch {
		case sellerID != "" && a.SellerID != sellerID:
			return fmt.Errorf("%w: seller mismatch", domain.ErrNotCancellable)
		case a.Status.Terminal():
			return fmt.Errorf("%w: auction is %s", domain.ErrNotCancellable, a.Status)
		case a.TotalBids > 0:
			return fmt.Errorf("%w: auction has bids", domain.ErrNotCancellable)
		}

		now := s.clock.Now()
		a.Status = domain.AuctionStatusCancelled
		a.Version++
		a.UpdatedAt = now
		if err := tx.SaveAuction(ctx, a); err != nil {
			return err
		}
		event = domain.Event{Type: domain.EventAuctionCancelled, AuctionID: a.ID, Amount: a.CurrentPrice, EndTime: a.EndTime, At: now}
		if err := tx.AppendEvents(ctx, []domain.Event{event}); err != nil {
			return err
		}
		cancelled = a
		return nil
	})
	if err != nil {
		return domain.Auction{}, fmt.Errorf("auction_service: cancel %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "auction_service: auction cancelled", slog.String("auction_id", id))
	publishAndCache(ctx, s.publisher, s.cache, s.logger, cancelled, "", []domain.Event{event}, s.clock.Now())
	return cancelled, nil
}

// ListBids returns the auction's bid history in arrival order.
func (s *AuctionService) ListBids(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Bid, error) {
	if _, err := s.auctions.GetByID(ctx, id); err != nil {
		return nil, fmt.Errorf("auction_service: list bids %s: %w", id, err)
	}
	bids, err := s.bids.ListByAuction(ctx, id, opts)
	if err != nil {
		return nil, fmt.Errorf("auction_service: list bids %s: %w", id, err)
	}
	return bids, nil
}

// GetMinimumNextBid returns the least acceptable amount for the next bid.
// It reads the display cache first and tolerates staleness; the locked
// resolution is authoritative.
func (s *AuctionService) GetMinimumNextBid(ctx context.Context, id string) (decimal.Decimal, error) {
	if s.cache != nil {
		snap, err := s.cache.Get(ctx, id)
		switch {
		case err == nil && snap.Mode == domain.AuctionModeEnglish && !snap.Status.Terminal():
			return snap.MinimumNextBid, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound):
			s.logger.WarnContext(ctx, "auction_service: cache read failed",
				slog.String("auction_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("auction_service: minimum bid %s: %w", id, err)
	}
	if a.Status.Terminal() {
		return decimal.Zero, domain.Reject(domain.KindAuctionNotActive, id, "")
	}
	return minimumNextBid(a, s.clock.Now()), nil
}

// GetCurrentDutchPrice returns the instantaneous price of a Dutch auction at
// now. For any other mode it returns ErrInvalidAuction.
func (s *AuctionService) GetCurrentDutchPrice(ctx context.Context, id string, now time.Time) (decimal.Decimal, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return decimal.Zero, fmt.Errorf("auction_service: dutch price %s: %w", id, err)
	}
	if a.Mode != domain.AuctionModeDutch {
		return decimal.Zero, fmt.Errorf("auction_service: dutch price %s: %w: mode is %s", id, domain.ErrInvalidAuction, a.Mode)
	}
	if a.Status.Terminal() {
		return a.CurrentPrice, nil
	}
	return pricing.DutchPrice(a.StartingPrice, a.ReserveValue(), a.StartTime, a.EndTime, now), nil
}
