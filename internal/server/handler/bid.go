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

// BidSubmitter is the bid entry point of the service layer.
type BidSubmitter interface {
	SubmitBid(ctx context.Context, req domain.BidRequest) (domain.BidResult, error)
}

// RetryPolicy bounds the handler's retries of lock contention.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

// BidHandler accepts bid submissions.
type BidHandler struct {
	bids   BidSubmitter
	retry  RetryPolicy
	logger *slog.Logger
}

// NewBidHandler creates a BidHandler.
func NewBidHandler(bids BidSubmitter, retry RetryPolicy, logger *slog.Logger) *BidHandler {
	return &BidHandler{
		bids:   bids,
		retry:  retry,
		logger: logHandler(logger, "bid"),
	}
}

// submitBidRequest is a manual bid when MaxAutoBid is absent and a proxy bid
// otherwise. A proxy without Amount is placed purely as a ceiling.
type submitBidRequest struct {
	SubmissionID string           `json:"submission_id"`
	BidderID     string           `json:"bidder_id"`
	Amount       *decimal.Decimal `json:"amount,omitempty"`
	MaxAutoBid   *decimal.Decimal `json:"max_auto_bid,omitempty"`
}

func (b submitBidRequest) order() domain.BidOrder {
	amount := decimal.Zero
	if b.Amount != nil {
		amount = *b.Amount
	}
	if b.MaxAutoBid != nil {
		return domain.ProxyBid{Amount: amount, Ceiling: *b.MaxAutoBid}
	}
	return domain.ManualBid{Amount: amount}
}

// SubmitBid places a bid. The Idempotency-Key header is used as the
// submission id when the body carries none.
// POST /api/auctions/{id}/bids
func (h *BidHandler) SubmitBid(w http.ResponseWriter, r *http.Request) {
	var body submitBidRequest
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.BidderID == "" {
		writeError(w, http.StatusBadRequest, "bidder_id is required")
		return
	}
	if body.Amount == nil && body.MaxAutoBid == nil {
		writeError(w, http.StatusBadRequest, "amount or max_auto_bid is required")
		return
	}
	if body.SubmissionID == "" {
		body.SubmissionID = r.Header.Get("Idempotency-Key")
	}

	req := domain.BidRequest{
		SubmissionID: body.SubmissionID,
		AuctionID:    pathParam(r, "id"),
		BidderID:     body.BidderID,
		Order:        body.order(),
	}
	res, err := service.RetryOnContention(r.Context(), h.retry.Attempts, h.retry.Backoff,
		func(ctx context.Context) (domain.BidResult, error) {
			return h.bids.SubmitBid(ctx, req)
		})
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
