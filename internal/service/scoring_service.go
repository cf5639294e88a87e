package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"code.cloudfoundry.org/clock"

	"github.com/alanyoungcy/auctionengine/internal/domain"
	"github.com/alanyoungcy/auctionengine/internal/scoring"
)

// ScoringService exposes the reputation and urgency scores and maintains the
// discovery ranking of live auctions.
type ScoringService struct {
	auctions  domain.AuctionStore
	stats     domain.SellerStatsStore
	ranking   domain.RankingCache
	rankLimit int
	clock     clock.Clock
	logger    *slog.Logger
}

// NewScoringService creates a ScoringService. ranking may be nil, in which
// case Trending scores live auctions on every call. rankLimit caps how many
// active auctions one refresh scores.
func NewScoringService(
	auctions domain.AuctionStore,
	stats domain.SellerStatsStore,
	ranking domain.RankingCache,
	rankLimit int,
	clk clock.Clock,
	logger *slog.Logger,
) *ScoringService {
	if rankLimit <= 0 {
		rankLimit = 1000
	}
	return &ScoringService{
		auctions:  auctions,
		stats:     stats,
		ranking:   ranking,
		rankLimit: rankLimit,
		clock:     clk,
		logger:    logger.With(slog.String("component", "scoring_service")),
	}
}

// ComputeReputationScore scores a seller from their statistics.
func (s *ScoringService) ComputeReputationScore(stats domain.SellerStats) float64 {
	return scoring.Reputation(stats)
}

// ComputeUrgencyScore scores an auction's urgency at now.
func (s *ScoringService) ComputeUrgencyScore(in domain.UrgencyInput, now time.Time) float64 {
	return scoring.Urgency(in, now)
}

// SellerReputation loads a seller's stored statistics and scores them.
func (s *ScoringService) SellerReputation(ctx context.Context, sellerID string) (float64, domain.SellerStats, error) {
	st, err := s.stats.Get(ctx, sellerID)
	if err != nil {
		return 0, domain.SellerStats{}, fmt.Errorf("scoring_service: seller stats %s: %w", sellerID, err)
	}
	return scoring.Reputation(st), st, nil
}

// RefreshRanking scores every active auction and replaces the cached
// ranking.
func (s *ScoringService) RefreshRanking(ctx context.Context) ([]domain.RankedAuction, error) {
	ranked, err := s.rank(ctx)
	if err != nil {
		return nil, err
	}
	if s.ranking != nil {
		if err := s.ranking.Replace(ctx, ranked); err != nil {
			return nil, fmt.Errorf("scoring_service: replace ranking: %w", err)
		}
	}
	s.logger.DebugContext(ctx, "scoring_service: ranking refreshed", slog.Int("auctions", len(ranked)))
	return ranked, nil
}

// Trending returns the n most urgent active auctions.
func (s *ScoringService) Trending(ctx context.Context, n int) ([]domain.RankedAuction, error) {
	if s.ranking != nil {
		top, err := s.ranking.Top(ctx, n)
		if err != nil {
			return nil, fmt.Errorf("scoring_service: top ranking: %w", err)
		}
		return top, nil
	}

	ranked, err := s.rank(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

func (s *ScoringService) rank(ctx context.Context) ([]domain.RankedAuction, error) {
	active, err := s.auctions.ListActive(ctx, domain.ListOpts{Limit: s.rankLimit})
	if err != nil {
		return nil, fmt.Errorf("scoring_service: list active: %w", err)
	}

	now := s.clock.Now()
	ranked := make([]domain.RankedAuction, 0, len(active))
	for _, a := range active {
		in := domain.UrgencyInputFor(a)
		in.CurrentPrice = displayPrice(a, now)
		ranked = append(ranked, domain.RankedAuction{AuctionID: a.ID, Score: s.ComputeUrgencyScore(in, now)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].AuctionID < ranked[j].AuctionID
	})
	return ranked, nil
}
