package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

// ScoringService defines what the scoring handler requires.
type ScoringService interface {
	ComputeReputationScore(stats domain.SellerStats) float64
	SellerReputation(ctx context.Context, sellerID string) (float64, domain.SellerStats, error)
	Trending(ctx context.Context, n int) ([]domain.RankedAuction, error)
}

// ScoringHandler serves reputation and discovery endpoints.
type ScoringHandler struct {
	scoring ScoringService
	logger  *slog.Logger
}

// NewScoringHandler creates a ScoringHandler.
func NewScoringHandler(scoring ScoringService, logger *slog.Logger) *ScoringHandler {
	return &ScoringHandler{scoring: scoring, logger: logHandler(logger, "scoring")}
}

type reputationResponse struct {
	SellerID string             `json:"seller_id"`
	Score    float64            `json:"score"`
	Stats    domain.SellerStats `json:"stats"`
}

// SellerReputation scores a seller from stored statistics.
// GET /api/sellers/{id}/reputation
func (h *ScoringHandler) SellerReputation(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	score, stats, err := h.scoring.SellerReputation(r.Context(), id)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reputationResponse{SellerID: id, Score: score, Stats: stats})
}

// reputationRequest carries AvgPaymentHours rather than a duration so
// callers need not know Go's nanosecond encoding.
type reputationRequest struct {
	SellerID          string  `json:"seller_id"`
	CompletionRate    float64 `json:"completion_rate"`
	AverageRating     float64 `json:"average_rating"`
	AvgPaymentHours   float64 `json:"avg_payment_hours"`
	TotalTransactions int     `json:"total_transactions"`
	DisputeRate       float64 `json:"dispute_rate"`
}

// ScoreReputation scores statistics supplied by the caller.
// POST /api/scores/reputation
func (h *ScoringHandler) ScoreReputation(w http.ResponseWriter, r *http.Request) {
	var req reputationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stats := domain.SellerStats{
		SellerID:          req.SellerID,
		CompletionRate:    req.CompletionRate,
		AverageRating:     req.AverageRating,
		AvgPaymentTime:    time.Duration(req.AvgPaymentHours * float64(time.Hour)),
		TotalTransactions: req.TotalTransactions,
		DisputeRate:       req.DisputeRate,
	}
	writeJSON(w, http.StatusOK, reputationResponse{
		SellerID: req.SellerID,
		Score:    h.scoring.ComputeReputationScore(stats),
		Stats:    stats,
	})
}

type trendingResponse struct {
	Auctions []domain.RankedAuction `json:"auctions"`
}

// Trending lists the most urgent live auctions.
// GET /api/auctions/trending?limit=20
func (h *ScoringHandler) Trending(w http.ResponseWriter, r *http.Request) {
	n := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		n = min(parsed, 200)
	}

	top, err := h.scoring.Trending(r.Context(), n)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if top == nil {
		top = []domain.RankedAuction{}
	}
	writeJSON(w, http.StatusOK, trendingResponse{Auctions: top})
}
