package scoring

import (
	"math"
	"time"

	"github.com/alanyoungcy/auctionengine/internal/domain"
)

const (
	activityCap   = 40.0
	priceLiftCap  = 20.0
	engagementCap = 10.0
)

var urgencyTiers = []struct {
	Within time.Duration
	Points float64
}{
	{Within: time.Hour, Points: 30},
	{Within: 6 * time.Hour, Points: 20},
	{Within: 24 * time.Hour, Points: 10},
}

// Urgency scores an auction in [0,100] for discovery ranking from its bid
// activity, time left until now, price lift over the start and engagement.
func Urgency(in domain.UrgencyInput, now time.Time) float64 {
	score := math.Min(float64(in.TotalBids)*2, activityCap)
	score += timePoints(in.EndTime.Sub(now))
	score += priceLift(in)
	score += math.Min(float64(in.Views)/100+float64(in.WatchlistCount)*2, engagementCap)

	return round2(clamp(score, 0, maxScore))
}

func timePoints(left time.Duration) float64 {
	if left < 0 {
		return 0
	}
	for _, tier := range urgencyTiers {
		if left <= tier.Within {
			return tier.Points
		}
	}
	return 0
}

// priceLift is the percentage gain over the starting price, a point per 5%.
func priceLift(in domain.UrgencyInput) float64 {
	if !in.StartingPrice.IsPositive() || in.CurrentPrice.LessThan(in.StartingPrice) {
		return 0
	}
	lift, _ := in.CurrentPrice.Sub(in.StartingPrice).Div(in.StartingPrice).Float64()
	return math.Min(lift*100/5, priceLiftCap)
}
