package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/alanyoungcy/auctionengine/internal/service"
)

// AuctionService defines what the auction handler requires from the service
// layer.
type AuctionService interface {
	Create(ctx context.Context, p service.CreateAuctionParams) (domain.Auction, error)
	Get(ctx context.Context, id string) (domain.Auction, error)
	Cancel(ctx context.Context, id, sellerID string) (domain.Auction, error)
	ListBids(ctx context.Context, id string, opts domain.ListOpts) ([]domain.Bid, error)
	GetMinimumNextBid(ctx context.Context, id string) (decimal.Decimal, error)
	GetCurrentDutchPrice(ctx context.Context, id string, now time.Time) (decimal.Decimal, error)
}

// AuctionHandler serves auction lifecycle and display endpoints.
type AuctionHandler struct {
	auctions AuctionService
	now      func() time.Time
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler. now supplies the instant used
// for Dutch price reads.
func NewAuctionHandler(auctions AuctionService, now func() time.Time, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		now:      now,
		logger:   logHandler(logger, "auction"),
	}
}

// CreateAuction lists a new auction.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var p service.CreateAuctionParams
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.auctions.Create(r.Context(), p)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// GetAuction returns one auction.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.auctions.Get(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type cancelRequest struct {
	SellerID string `json:"seller_id"`
}

// CancelAuction withdraws an auction that has no bids.
// POST /api/auctions/{id}/cancel
func (h *AuctionHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	a, err := h.auctions.Cancel(r.Context(), pathParam(r, "id"), req.SellerID)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type listBidsResponse struct {
	Bids []domain.Bid `json:"bids"`
}

// ListBids returns the auction's bid history. Proxy ceilings are never
// included.
// GET /api/auctions/{id}/bids?limit=50&offset=0
func (h *AuctionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.auctions.ListBids(r.Context(), pathParam(r, "id"), parseListOpts(r))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if bids == nil {
		bids = []domain.Bid{}
	}
	writeJSON(w, http.StatusOK, listBidsResponse{Bids: bids})
}

type priceResponse struct {
	AuctionID string          `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
	At        time.Time       `json:"at"`
}

// GetMinimumBid returns the least acceptable next bid.
// GET /api/auctions/{id}/minimum-bid
func (h *AuctionHandler) GetMinimumBid(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	min, err := h.auctions.GetMinimumNextBid(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{AuctionID: id, Amount: min, At: h.now().UTC()})
}

// GetDutchPrice returns a Dutch auction's price at the given instant, or now.
// GET /api/auctions/{id}/dutch-price?at=2026-09-01T12:00:00Z
func (h *AuctionHandler) GetDutchPrice(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	at := h.now()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "at must be RFC3339")
			return
		}
		at = parsed
	}

	price, err := h.auctions.GetCurrentDutchPrice(r.Context(), id, at)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{AuctionID: id, Amount: price, At: at.UTC()})
}
