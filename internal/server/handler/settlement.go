package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// SettlementService defines what the settlement handler requires.
type SettlementService interface {
	ComputeSettlementFees(category string, finalPrice decimal.Decimal) domain.FeeBreakdown
	Settle(ctx context.Context, id string) (domain.Settlement, error)
	OpenArchive(ctx context.Context, id string) (io.ReadCloser, error)
}

// SettlementHandler serves fee quotes, settlement and archive downloads.
type SettlementHandler struct {
	settlement SettlementService
	logger     *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlement SettlementService, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settlement: settlement, logger: logHandler(logger, "settlement")}
}

// QuoteFees returns the commission breakdown for a hypothetical sale.
// GET /api/fees?category=art&price=12000
func (h *SettlementHandler) QuoteFees(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	price, err := decimal.NewFromString(q.Get("price"))
	if err != nil || price.IsNegative() {
		writeError(w, http.StatusBadRequest, "price must be a non-negative number")
		return
	}
	writeJSON(w, http.StatusOK, h.settlement.ComputeSettlementFees(q.Get("category"), price))
}

// Settle settles an ENDED auction.
// POST /api/auctions/{id}/settle
func (h *SettlementHandler) Settle(w http.ResponseWriter, r *http.Request) {
	out, err := h.settlement.Settle(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// DownloadArchive streams the archived JSONL history of a settled auction.
// GET /api/auctions/{id}/archive
func (h *SettlementHandler) DownloadArchive(w http.ResponseWriter, r *http.Request) {
	rc, err := h.settlement.OpenArchive(r.Context(), pathParam(r, "id"))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "archive stream interrupted", slog.String("error", err.Error()))
	}
}
