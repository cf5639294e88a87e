package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/alanyoungcy/auctionengine/internal/pricing"
)

// SettlementService computes commissions and archives finished auctions.
type SettlementService struct {
	fees     pricing.FeeSchedule
	auctions domain.AuctionStore
	bids     domain.BidStore
	archiver domain.Archiver
	blobs    domain.BlobReader
	logger   *slog.Logger
}

// NewSettlementService creates a SettlementService. A nil fee schedule uses
// pricing.DefaultFeeSchedule.
func NewSettlementService(
	fees pricing.FeeSchedule,
	auctions domain.AuctionStore,
	bids domain.BidStore,
	logger *slog.Logger,
) *SettlementService {
	if fees == nil {
		fees = pricing.DefaultFeeSchedule()
	}
	return &SettlementService{
		fees:     fees,
		auctions: auctions,
		bids:     bids,
		logger:   logger.With(slog.String("component", "settlement_service")),
	}
}

// WithArchive uploads the bid history of every settled auction. reader may
// be nil, in which case Settle re-uploads on every call.
func (s *SettlementService) WithArchive(archiver domain.Archiver, reader domain.BlobReader) *SettlementService {
	s.archiver = archiver
	s.blobs = reader
	return s
}

// ComputeSettlementFees returns the fee breakdown for a sale at finalPrice.
func (s *SettlementService) ComputeSettlementFees(category string, finalPrice decimal.Decimal) domain.FeeBreakdown {
	return s.fees.Compute(category, finalPrice)
}

// Settle computes the fees owed on an ENDED auction's winning bid and
// archives its history. It is safe to call more than once.
func (s *SettlementService) Settle(ctx context.Context, id string) (domain.Settlement, error) {
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return domain.Settlement{}, fmt.Errorf("settlement_service: get %s: %w", id, err)
	}
	if a.Status != domain.AuctionStatusEnded {
		return domain.Settlement{}, fmt.Errorf("settlement_service: settle %s: %w: status is %s", id, domain.ErrAuctionNotActive, a.Status)
	}

	out := domain.Settlement{AuctionID: a.ID}
	winning, err := s.bids.GetWinning(ctx, id)
	switch {
	case err == nil && a.ReserveMet(winning.Amount):
		out.Sold = true
		out.WinnerID = winning.BidderID
		out.WinningBid = winning.ID
		out.Fees = s.fees.Compute(a.Category, winning.Amount)
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return domain.Settlement{}, fmt.Errorf("settlement_service: winning bid %s: %w", id, err)
	}

	if s.archiver != nil {
		path, err := s.archive(ctx, a)
		if err != nil {
			return domain.Settlement{}, err
		}
		out.ArchivePath = path
	}

	s.logger.InfoContext(ctx, "settlement_service: auction settled",
		slog.String("auction_id", id),
		slog.Bool("sold", out.Sold),
		slog.String("winner_id", out.WinnerID),
		slog.String("seller_fee", out.Fees.SellerFeeAmount.String()),
		slog.String("buyer_fee", out.Fees.BuyerFeeAmount.String()),
	)
	return out, nil
}

func (s *SettlementService) archive(ctx context.Context, a domain.Auction) (string, error) {
	path := s.archiver.ArchivePath(a)
	if s.blobs != nil {
		exists, err := s.blobs.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("settlement_service: archive lookup %s: %w", a.ID, err)
		}
		if exists {
			return path, nil
		}
	}

	bids, err := s.bids.ListByAuction(ctx, a.ID, domain.ListOpts{})
	if err != nil {
		return "", fmt.Errorf("settlement_service: archive bids %s: %w", a.ID, err)
	}
	path, err = s.archiver.ArchiveAuction(ctx, a, bids)
	if err != nil {
		return "", fmt.Errorf("settlement_service: archive %s: %w", a.ID, err)
	}
	return path, nil
}

// OpenArchive streams an auction's archived history. The caller closes the
// reader.
func (s *SettlementService) OpenArchive(ctx context.Context, id string) (io.ReadCloser, error) {
	if s.archiver == nil || s.blobs == nil {
		return nil, fmt.Errorf("settlement_service: archive disabled: %w", domain.ErrNotFound)
	}
	a, err := s.auctions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("settlement_service: get %s: %w", id, err)
	}
	rc, err := s.blobs.Get(ctx, s.archiver.ArchivePath(a))
	if err != nil {
		return nil, fmt.Errorf("settlement_service: open archive %s: %w", id, err)
	}
	return rc, nil
}
