// Package scoring derives display scores from seller history and live auction
// telemetry. Scores rank and decorate listings; no bid decision reads them.
package scoring

import (
	"math"
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

const (
	maxScore = 100.0

	completionPoints = 40.0
	ratingPoints     = 30.0
	volumeBonusCap   = 10.0
	disputeWeight    = 20.0
)

// paymentTier awards Points when the average payment time is within Within.
type paymentTier struct {
	Within time.Duration
	Points float64
}

var paymentTiers = []paymentTier{
	{Within: 24 * time.Hour, Points: 20},
	{Within: 48 * time.Hour, Points: 15},
	{Within: 72 * time.Hour, Points: 10},
}

const slowPaymentPoints = 5.0

// Reputation scores a seller in [0,100].
//
// Completion rate contributes up to 40 points, the 1-5 average rating up to
// 30, payment speed 5-20 by tier and transaction volume up to 10. The dispute
// rate (a fraction) costs up to 20 points.
func Reputation(stats domain.SellerStats) float64 {
	score := clamp(stats.CompletionRate, 0, 1) * completionPoints
	score += (clamp(stats.AverageRating, 1, 5) - 1) / 4 * ratingPoints
	score += paymentPoints(stats.AvgPaymentTime)
	score += math.Min(float64(max(stats.TotalTransactions, 0))/10, volumeBonusCap)
	score -= clamp(stats.DisputeRate, 0, 1) * disputeWeight

	return round2(clamp(score, 0, maxScore))
}

func paymentPoints(avg time.Duration) float64 {
	for _, tier := range paymentTiers {
		if avg <= tier.Within {
			return tier.Points
		}
	}
	return slowPaymentPoints
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
