// Package pricing holds the pure price functions of the engine: the bid
// increment ladder, the Dutch descending price and the settlement fee
// schedule. Nothing here touches storage or the clock.
package pricing

import "github.com/shopspring/decimal"

// incrementBand maps prices at or above Floor to Step.
type incrementBand struct {
	Floor decimal.Decimal
	Step  decimal.Decimal
}

// incrementLadder is ordered by descending floor so the first match wins.
var incrementLadder = []incrementBand{
	{Floor: decimal.NewFromInt(500_000), Step: decimal.NewFromInt(10_000)},
	{Floor: decimal.NewFromInt(100_000), Step: decimal.NewFromInt(500)},
	{Floor: decimal.NewFromInt(50_000), Step: decimal.NewFromInt(250)},
	{Floor: decimal.NewFromInt(10_000), Step: decimal.NewFromInt(100)},
	{Floor: decimal.NewFromInt(5_000), Step: decimal.NewFromInt(50)},
	{Floor: decimal.NewFromInt(1_000), Step: decimal.NewFromInt(25)},
	{Floor: decimal.NewFromInt(500), Step: decimal.NewFromInt(10)},
	{Floor: decimal.Zero, Step: decimal.NewFromInt(5)},
}

// MinIncrement returns the smallest step a bid must add to price. Negative
// prices fall into the lowest band.
func MinIncrement(price decimal.Decimal) decimal.Decimal {
	for _, band := range incrementLadder {
		if price.GreaterThanOrEqual(band.Floor) {
			return band.Step
		}
	}
	return incrementLadder[len(incrementLadder)-1].Step
}

// Increment returns override when it is a positive amount, otherwise the
// ladder step for price.
func Increment(price decimal.Decimal, override *decimal.Decimal) decimal.Decimal {
	if override != nil && override.IsPositive() {
		return *override
	}
	return MinIncrement(price)
}

// MinimumNextBid is price plus the applicable increment. It is always
// strictly greater than price.
func MinimumNextBid(price decimal.Decimal, override *decimal.Decimal) decimal.Decimal {
	return price.Add(Increment(price, override))
}
